package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/kangpj/activeCal/internal/department"
	"github.com/kangpj/activeCal/internal/directory"
	"github.com/kangpj/activeCal/internal/votes"
)

// wsFrame is the wire envelope for every message in both directions.
type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type votePayload struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
}

type statisticsPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type signInPayload struct {
	UserID     string `json:"userId"`
	Department string `json:"department"`
	Nickname   string `json:"nickname"`
}

type voteStatisticData struct {
	VotersTotal    int `json:"votersTotal"`
	AvailableTotal int `json:"availableTotal"`
	TheDay         int `json:"theDay"`
}

// wsPeer serializes frame writes to one connection.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.conn, frame)
}

// handlerState groups the process-wide registries the router operates on.
// Tests construct isolated instances, so nothing here is a package global.
type handlerState struct {
	sessions    *sessionRegistry
	departments *department.Registry
	users       *directory.Directory
}

func newHandlerState(rule directory.ManagerRule) *handlerState {
	return &handlerState{
		sessions:    newSessionRegistry(),
		departments: department.NewRegistry(),
		users:       directory.New(rule),
	}
}

// departmentFor resolves which department a session acts on: the signed-in
// user's department when known, the default department otherwise.
func (s *handlerState) departmentFor(session *wsSession) string {
	if userID := session.user(); userID != "" {
		if user, ok := s.users.Get(userID); ok {
			return user.Department
		}
	}
	return department.DefaultID
}

// departmentForVoter resolves the department for a vote cast by userID,
// which may belong to a different user than the session's sign-in.
func (s *handlerState) departmentForVoter(userID string) string {
	if user, ok := s.users.Get(userID); ok {
		return user.Department
	}
	return department.DefaultID
}

// broadcast best-effort delivers the frame to every active session. A
// failed write is logged and skipped; it never aborts the fan-out.
func (s *handlerState) broadcast(frame wsFrame) {
	for _, session := range s.sessions.live() {
		if err := session.peer.writeFrame(frame); err != nil {
			log.Printf("calendar: broadcast to %s failed: %v", session.remoteAddr, err)
		}
	}
}

// NewHandler creates calendar routes over a fresh, isolated state instance
// with the default manager rule. Intended for tests and offline paths.
func NewHandler() http.Handler {
	return newHandler(newHandlerState(directory.ManagerRule{
		Department: defaultManagerDepartment,
		Nickname:   defaultManagerNickname,
	}))
}

func newHandler(state *handlerState) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, state)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, state *handlerState) {
	remoteAddr := ""
	if request := conn.Request(); request != nil {
		remoteAddr = request.RemoteAddr
	}

	peer := newWSPeer(conn)
	session, err := state.sessions.admit(conn, peer, remoteAddr)
	if err != nil {
		log.Printf("calendar: admit connection from %s: %v", remoteAddr, err)
		_ = conn.Close()
		return
	}
	defer state.sessions.release(session)

	log.Printf("calendar: client connected from %s", remoteAddr)

	for {
		// Whole frames only: a malformed payload must not desync the
		// stream, so decoding happens after receipt.
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			log.Printf("calendar: client from %s disconnected", remoteAddr)
			return
		}
		state.sessions.touch(session)

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("calendar: malformed frame from %s: %v", remoteAddr, err)
			continue
		}

		switch frame.Type {
		case "init":
			handleInitFrame(state, session, frame)
		case "ping":
			handlePingFrame(session)
		case "vote":
			handleVoteFrame(state, session, frame)
		case "getStatistics":
			handleStatisticsFrame(state, session, frame)
		case "signIn":
			handleSignInFrame(state, session, frame)
		case "logout":
			handleLogoutFrame(state, session)
		case "resetVotes":
			handleResetVotesFrame(state, session)
		default:
			log.Printf("calendar: unknown message type %q from %s", frame.Type, remoteAddr)
		}
	}
}

func handleInitFrame(state *handlerState, session *wsSession, frame wsFrame) {
	var clientID string
	if err := json.Unmarshal(frame.Data, &clientID); err != nil {
		log.Printf("calendar: invalid init payload from %s: %v", session.remoteAddr, err)
		return
	}
	if strings.TrimSpace(clientID) == "" {
		log.Printf("calendar: init without client id from %s", session.remoteAddr)
		return
	}

	if _, err := state.sessions.bind(session, clientID); err != nil {
		log.Printf("calendar: bind session for %s: %v", session.remoteAddr, err)
		return
	}

	snapshot := state.departments.Ledger(department.DefaultID).All()
	_ = session.peer.writeFrame(updateVotesFrame(snapshot))
}

func handlePingFrame(session *wsSession) {
	_ = session.peer.writeFrame(wsFrame{Type: "pong"})
}

func handleVoteFrame(state *handlerState, session *wsSession, frame wsFrame) {
	var payload votePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		log.Printf("calendar: invalid vote payload from %s: %v", session.remoteAddr, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if payload.Year == 0 || payload.Month == 0 || userID == "" || strings.TrimSpace(payload.ClientID) == "" {
		log.Printf("calendar: vote with missing fields from %s", session.remoteAddr)
		return
	}

	ledger := state.departments.Ledger(state.departmentForVoter(userID))

	// day 0 is a pure query: no mutation, snapshot goes to the caller only.
	if payload.Day == 0 {
		_ = session.peer.writeFrame(updateVotesFrame(ledger.All()))
		return
	}

	ledger.Toggle(votes.Day{Year: payload.Year, Month: payload.Month, Day: payload.Day}, userID)
	state.broadcast(updateVotesFrame(ledger.All()))
}

func handleStatisticsFrame(state *handlerState, session *wsSession, frame wsFrame) {
	var payload statisticsPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		log.Printf("calendar: invalid statistics payload from %s: %v", session.remoteAddr, err)
		return
	}
	if payload.Year == 0 || payload.Month == 0 {
		log.Printf("calendar: statistics request with missing fields from %s", session.remoteAddr)
		return
	}

	ledger := state.departments.Ledger(state.departmentFor(session))
	day, count, ok := ledger.MostVoted(payload.Year, payload.Month)
	theDay := 0
	if ok {
		theDay = day.Day
	}

	_ = session.peer.writeFrame(wsFrame{
		Type: "updateVoteStatistic",
		Data: mustJSON(voteStatisticData{
			VotersTotal:    ledger.UniqueVoters(),
			AvailableTotal: count,
			TheDay:         theDay,
		}),
	})
}

func handleSignInFrame(state *handlerState, session *wsSession, frame wsFrame) {
	var payload signInPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		log.Printf("calendar: invalid signIn payload from %s: %v", session.remoteAddr, err)
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	nickname := strings.TrimSpace(payload.Nickname)
	if userID == "" || nickname == "" {
		log.Printf("calendar: signIn with missing fields from %s", session.remoteAddr)
		return
	}

	departmentID := department.Normalize(payload.Department)
	if previous, ok := state.users.Get(userID); ok && previous.Department != departmentID {
		state.departments.RemoveMember(previous.Department, userID)
	}

	user := state.users.SignIn(userID, departmentID, nickname)
	state.departments.AddMember(departmentID, userID)
	state.departments.AssignOwnerIfAbsent(departmentID, userID)
	session.setUser(userID)

	log.Printf("calendar: user %s signed in to department %s", userID, departmentID)
	if user.IsManager {
		_ = session.peer.writeFrame(wsFrame{Type: "managerAuthenticated"})
	}
}

func handleLogoutFrame(state *handlerState, session *wsSession) {
	userID := session.user()
	if userID == "" {
		log.Printf("calendar: logout without a signed-in user from %s", session.remoteAddr)
		return
	}

	if user, ok := state.users.Logout(userID); ok {
		state.departments.RemoveMember(user.Department, userID)
		log.Printf("calendar: user %s logged out", userID)
	}
	session.setUser("")
}

func handleResetVotesFrame(state *handlerState, session *wsSession) {
	userID := session.user()
	user, ok := state.users.Get(userID)
	if !ok {
		log.Printf("calendar: resetVotes without a signed-in user from %s", session.remoteAddr)
		return
	}
	if !user.IsManager && !state.departments.IsOwner(user.Department, userID) {
		log.Printf("calendar: unauthorized resetVotes by %s from %s", userID, session.remoteAddr)
		return
	}

	ledger := state.departments.Ledger(user.Department)
	ledger.Clear()
	log.Printf("calendar: votes reset for department %s by %s", user.Department, userID)
	state.broadcast(updateVotesFrame(ledger.All()))
}

func updateVotesFrame(snapshot map[string][]string) wsFrame {
	return wsFrame{Type: "updateVotes", Data: mustJSON(snapshot)}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("calendar: failed to marshal frame payload: %v", err)
		return nil
	}
	return b
}
