package directory

import "testing"

var testRule = ManagerRule{Department: "ulsanedu", Nickname: "caconam"}

func TestSignInDerivesManagerFlag(t *testing.T) {
	tests := []struct {
		name        string
		department  string
		nickname    string
		wantManager bool
	}{
		{name: "manager pair", department: "ulsanedu", nickname: "caconam", wantManager: true},
		{name: "wrong nickname", department: "ulsanedu", nickname: "visitor", wantManager: false},
		{name: "wrong department", department: "floating", nickname: "caconam", wantManager: false},
		{name: "both wrong", department: "floating", nickname: "visitor", wantManager: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := New(testRule)
			user := d.SignIn("u1", tc.department, tc.nickname)
			if user.IsManager != tc.wantManager {
				t.Fatalf("IsManager = %v, want %v", user.IsManager, tc.wantManager)
			}
		})
	}
}

func TestEmptyRuleMatchesNothing(t *testing.T) {
	d := New(ManagerRule{})
	if user := d.SignIn("u1", "", ""); user.IsManager {
		t.Fatal("empty rule must never grant manager")
	}
}

func TestSignInReplacesRecord(t *testing.T) {
	d := New(testRule)
	d.SignIn("u1", "sales", "amy")
	d.SignIn("u1", "ops", "amy")

	user, ok := d.Get("u1")
	if !ok {
		t.Fatal("user should be signed in")
	}
	if user.Department != "ops" {
		t.Fatalf("department = %q, want ops", user.Department)
	}
	if d.Count() != 1 {
		t.Fatalf("count = %d, want 1", d.Count())
	}
}

func TestLogout(t *testing.T) {
	d := New(testRule)
	d.SignIn("u1", "sales", "amy")

	user, ok := d.Logout("u1")
	if !ok || user.ID != "u1" {
		t.Fatalf("logout = %+v, %v, want u1 record", user, ok)
	}
	if _, ok := d.Get("u1"); ok {
		t.Fatal("user should be gone after logout")
	}
	if _, ok := d.Logout("u1"); ok {
		t.Fatal("second logout should report absence")
	}
}
