package server

import (
	"errors"
	"testing"
	"time"
)

type closeRecorder struct {
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func newTestRegistry() *sessionRegistry {
	registry := newSessionRegistry()
	secret := 100000
	registry.newSecret = func() (int, error) {
		secret++
		return secret, nil
	}
	return registry
}

func admitTestSession(t *testing.T, registry *sessionRegistry) (*wsSession, *closeRecorder) {
	t.Helper()
	closer := &closeRecorder{}
	session, err := registry.admit(closer, nil, "127.0.0.1:1234")
	if err != nil {
		t.Fatalf("admit session: %v", err)
	}
	return session, closer
}

func TestAdmittedSessionNotLive(t *testing.T) {
	registry := newTestRegistry()
	admitTestSession(t, registry)

	if live := registry.live(); len(live) != 0 {
		t.Fatalf("live sessions = %d, want 0 before bind", len(live))
	}
}

func TestBindActivatesSession(t *testing.T) {
	registry := newTestRegistry()
	session, _ := admitTestSession(t, registry)

	secret, err := registry.bind(session, "client-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if secret < 100000 || secret > 999999 {
		t.Fatalf("secret = %d, want 6-digit value", secret)
	}

	live := registry.live()
	if len(live) != 1 || live[0] != session {
		t.Fatalf("live sessions = %v, want the bound session", live)
	}
}

func TestBindRequiresClientID(t *testing.T) {
	registry := newTestRegistry()
	session, _ := admitTestSession(t, registry)

	if _, err := registry.bind(session, "  "); err == nil {
		t.Fatal("expected error for blank client id")
	}
}

func TestRebindOverwritesIndexEntry(t *testing.T) {
	registry := newTestRegistry()
	session, _ := admitTestSession(t, registry)

	if _, err := registry.bind(session, "client-1"); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	secret, err := registry.bind(session, "client-2")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}

	// The old client id no longer resolves.
	if err := registry.verifyAndDecouple("client-1", secret); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("old client id err = %v, want ErrInvalidSecret", err)
	}
	if err := registry.verifyAndDecouple("client-2", secret); err != nil {
		t.Fatalf("new client id should decouple: %v", err)
	}
	if live := registry.live(); len(live) != 1 {
		t.Fatalf("live sessions = %d, want 1 after rebind", len(live))
	}
}

func TestBindStealsClientIDFromPreviousHolder(t *testing.T) {
	registry := newTestRegistry()
	first, _ := admitTestSession(t, registry)
	second, _ := admitTestSession(t, registry)

	if _, err := registry.bind(first, "client-1"); err != nil {
		t.Fatalf("bind first: %v", err)
	}
	if _, err := registry.bind(second, "client-1"); err != nil {
		t.Fatalf("bind second: %v", err)
	}

	live := registry.live()
	if len(live) != 1 || live[0] != second {
		t.Fatalf("live sessions = %v, want only the new holder", live)
	}
}

func TestReleaseClosesConnectionOnce(t *testing.T) {
	registry := newTestRegistry()
	session, closer := admitTestSession(t, registry)
	if _, err := registry.bind(session, "client-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	registry.release(session)
	registry.release(session)

	if closer.closed != 1 {
		t.Fatalf("connection closed %d times, want 1", closer.closed)
	}
	if live := registry.live(); len(live) != 0 {
		t.Fatalf("live sessions = %d, want 0 after release", len(live))
	}
}

func TestBindAfterReleaseFails(t *testing.T) {
	registry := newTestRegistry()
	session, _ := admitTestSession(t, registry)
	registry.release(session)

	if _, err := registry.bind(session, "client-1"); err == nil {
		t.Fatal("expected error binding a closed session")
	}
}

func TestVerifyAndDecouple(t *testing.T) {
	registry := newTestRegistry()
	session, _ := admitTestSession(t, registry)
	secret, err := registry.bind(session, "client-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	if err := registry.verifyAndDecouple("client-1", secret+1); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("wrong secret err = %v, want ErrInvalidSecret", err)
	}
	if err := registry.verifyAndDecouple("ghost", secret); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("unknown client err = %v, want ErrInvalidSecret", err)
	}

	if err := registry.verifyAndDecouple("client-1", secret); err != nil {
		t.Fatalf("decouple: %v", err)
	}
	// Association is gone: the same pair no longer verifies and the session
	// dropped out of the broadcast set.
	if err := registry.verifyAndDecouple("client-1", secret); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("repeat decouple err = %v, want ErrInvalidSecret", err)
	}
	if live := registry.live(); len(live) != 0 {
		t.Fatalf("live sessions = %d, want 0 after decouple", len(live))
	}
}

func TestPruneStaleReleasesIdleSessions(t *testing.T) {
	registry := newTestRegistry()
	now := time.Now()
	registry.clock = func() time.Time { return now }

	idle, idleCloser := admitTestSession(t, registry)
	if _, err := registry.bind(idle, "idle"); err != nil {
		t.Fatalf("bind idle: %v", err)
	}

	now = now.Add(time.Minute)
	fresh, freshCloser := admitTestSession(t, registry)
	if _, err := registry.bind(fresh, "fresh"); err != nil {
		t.Fatalf("bind fresh: %v", err)
	}
	registry.touch(fresh)

	pruned := registry.pruneStale(30 * time.Second)

	if len(pruned) != 1 || pruned[0] != idle {
		t.Fatalf("pruned = %v, want only the idle session", pruned)
	}
	if idleCloser.closed != 1 {
		t.Fatal("idle session connection should be closed")
	}
	if freshCloser.closed != 0 {
		t.Fatal("fresh session connection should stay open")
	}
	if live := registry.live(); len(live) != 1 || live[0] != fresh {
		t.Fatalf("live sessions = %v, want only the fresh session", live)
	}
}

func TestSessionReaperStops(t *testing.T) {
	registry := newTestRegistry()
	stop, done := startSessionReaper(registry, time.Millisecond, time.Hour)

	time.Sleep(5 * time.Millisecond)
	stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
