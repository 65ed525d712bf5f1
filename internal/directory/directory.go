// Package directory holds the process-wide map of signed-in users.
//
// User records outlive any single connection: they are created by signIn
// messages and destroyed only by explicit logout, never by a disconnect.
package directory

import (
	"strings"
	"sync"
)

// User is a signed-in client identity.
type User struct {
	ID         string
	Department string
	Nickname   string
	IsManager  bool
}

// ManagerRule designates the privileged department and display name. A user
// is a manager only when both match exactly.
type ManagerRule struct {
	Department string
	Nickname   string
}

// Matches reports whether the department and nickname pair satisfies the
// rule. An empty rule matches nothing.
func (r ManagerRule) Matches(departmentID, nickname string) bool {
	if r.Department == "" || r.Nickname == "" {
		return false
	}
	return departmentID == r.Department && nickname == r.Nickname
}

// Directory stores users keyed by their client-supplied id. The zero value
// is not usable; create instances with New.
type Directory struct {
	mu    sync.Mutex
	rule  ManagerRule
	users map[string]User
}

// New creates an empty directory enforcing the given manager rule.
func New(rule ManagerRule) *Directory {
	return &Directory{
		rule:  rule,
		users: make(map[string]User),
	}
}

// SignIn creates or replaces the user record and derives its manager flag.
func (d *Directory) SignIn(userID, departmentID, nickname string) User {
	userID = strings.TrimSpace(userID)
	nickname = strings.TrimSpace(nickname)

	user := User{
		ID:         userID,
		Department: departmentID,
		Nickname:   nickname,
		IsManager:  d.rule.Matches(departmentID, nickname),
	}

	d.mu.Lock()
	d.users[userID] = user
	d.mu.Unlock()
	return user
}

// Logout deletes the user record and returns it. ok is false when the user
// was not signed in.
func (d *Directory) Logout(userID string) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[userID]
	if ok {
		delete(d.users, userID)
	}
	return user, ok
}

// Get looks up a signed-in user.
func (d *Directory) Get(userID string) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	return user, ok
}

// Count reports how many users are signed in.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}
