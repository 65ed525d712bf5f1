package server

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kangpj/activeCal/internal/id"
	"github.com/kangpj/activeCal/internal/random"
)

// ErrInvalidSecret is returned when a decoupling request presents a secret
// that does not match the stored one, or names an unknown client id.
var ErrInvalidSecret = errors.New("invalid session secret")

var errSessionClosed = errors.New("session is closed")

type sessionState int

const (
	sessionConnecting sessionState = iota
	sessionActive
	sessionClosed
)

// wsSession is one live connection's transient state. It is distinct from
// the longer-lived signed-in user: releasing a session never touches the
// user directory.
type wsSession struct {
	id         string
	remoteAddr string
	peer       *wsPeer
	closer     io.Closer

	mu       sync.Mutex
	state    sessionState
	clientID string
	secret   int
	userID   string
	lastSeen time.Time
}

func (s *wsSession) setUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *wsSession) user() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// sessionRegistry tracks every live session and indexes active ones by
// client id, so bind and release stay O(1) regardless of connection churn.
type sessionRegistry struct {
	mu         sync.Mutex
	sessions   map[*wsSession]struct{}
	byClientID map[string]*wsSession

	newID     func() (string, error)
	newSecret func() (int, error)
	clock     func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions:   make(map[*wsSession]struct{}),
		byClientID: make(map[string]*wsSession),
		newID:      id.NewID,
		newSecret:  random.NewSecret,
		clock:      time.Now,
	}
}

// admit creates a session in connecting state. The session is not eligible
// for broadcast until bound to a client id.
func (r *sessionRegistry) admit(closer io.Closer, peer *wsPeer, remoteAddr string) (*wsSession, error) {
	sessionID, err := r.newID()
	if err != nil {
		return nil, err
	}

	session := &wsSession{
		id:         sessionID,
		remoteAddr: remoteAddr,
		peer:       peer,
		closer:     closer,
		state:      sessionConnecting,
		lastSeen:   r.clock(),
	}

	r.mu.Lock()
	r.sessions[session] = struct{}{}
	r.mu.Unlock()
	return session, nil
}

// bind activates the session under clientID and returns a fresh secret.
// Rebinding an already-active session overwrites its index entry, and
// binding a client id held by another session unbinds the previous holder.
func (r *sessionRegistry) bind(session *wsSession, clientID string) (int, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return 0, errors.New("client id is required")
	}

	secret, err := r.newSecret()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state == sessionClosed {
		return 0, errSessionClosed
	}

	if previous, ok := r.byClientID[clientID]; ok && previous != session {
		previous.mu.Lock()
		previous.state = sessionConnecting
		previous.clientID = ""
		previous.secret = 0
		previous.mu.Unlock()
	}
	if session.clientID != "" && session.clientID != clientID {
		delete(r.byClientID, session.clientID)
	}

	session.state = sessionActive
	session.clientID = clientID
	session.secret = secret
	r.byClientID[clientID] = session
	return secret, nil
}

// release transitions the session to its terminal closed state, removes it
// from the live set and closes the underlying connection. It is safe to
// call on every exit path, including repeated calls.
func (r *sessionRegistry) release(session *wsSession) {
	if session == nil {
		return
	}

	r.mu.Lock()
	session.mu.Lock()
	alreadyClosed := session.state == sessionClosed
	session.state = sessionClosed
	clientID := session.clientID
	session.clientID = ""
	session.secret = 0
	session.mu.Unlock()

	if clientID != "" && r.byClientID[clientID] == session {
		delete(r.byClientID, clientID)
	}
	delete(r.sessions, session)
	r.mu.Unlock()

	if !alreadyClosed && session.closer != nil {
		_ = session.closer.Close()
	}
}

// live returns a snapshot of every active session, the broadcast target
// set. Connecting and closed sessions are excluded.
func (r *sessionRegistry) live() []*wsSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]*wsSession, 0, len(r.sessions))
	for session := range r.sessions {
		session.mu.Lock()
		if session.state == sessionActive {
			active = append(active, session)
		}
		session.mu.Unlock()
	}
	return active
}

// touch records inbound activity for heartbeat accounting.
func (r *sessionRegistry) touch(session *wsSession) {
	now := r.clock()
	session.mu.Lock()
	session.lastSeen = now
	session.mu.Unlock()
}

// verifyAndDecouple validates a client-presented secret and, on success,
// clears the client id association so a reconnecting client can bind
// again. The connection itself stays open in connecting state.
//
// No current message type invokes this; it backs the reconnect flow the
// protocol reserves the secret for.
func (r *sessionRegistry) verifyAndDecouple(clientID string, secret int) error {
	clientID = strings.TrimSpace(clientID)

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byClientID[clientID]
	if !ok {
		return ErrInvalidSecret
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.secret != secret {
		return ErrInvalidSecret
	}

	delete(r.byClientID, clientID)
	session.state = sessionConnecting
	session.clientID = ""
	session.secret = 0
	return nil
}

// pruneStale releases every session whose last inbound message predates
// maxIdle and returns the released sessions.
func (r *sessionRegistry) pruneStale(maxIdle time.Duration) []*wsSession {
	cutoff := r.clock().Add(-maxIdle)

	r.mu.Lock()
	var stale []*wsSession
	for session := range r.sessions {
		session.mu.Lock()
		if session.lastSeen.Before(cutoff) {
			stale = append(stale, session)
		}
		session.mu.Unlock()
	}
	r.mu.Unlock()

	for _, session := range stale {
		r.release(session)
	}
	return stale
}

// startSessionReaper sweeps the registry on every interval tick and
// releases sessions idle past maxIdle. The returned cancel func stops the
// worker; the done channel closes once it has exited.
func startSessionReaper(registry *sessionRegistry, interval, maxIdle time.Duration) (context.CancelFunc, chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, session := range registry.pruneStale(maxIdle) {
					log.Printf("calendar: released idle session %s from %s", session.id, session.remoteAddr)
				}
			}
		}
	}()

	return cancel, done
}
