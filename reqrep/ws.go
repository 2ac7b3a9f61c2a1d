package reqrep

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tryfix/log"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type SessionState int32

const (
	SessionNew SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionNew:
		return `new`
	case SessionOpen:
		return `open`
	case SessionClosing:
		return `closing`
	default:
		return `closed`
	}
}

var ErrSessionClosed = errors.New(`websocket session is not open`)

// Session is a websocket connection accepted by the server. Writes are
// serialized and Close may be called any number of times from any goroutine.
type Session struct {
	id        string
	conn      *websocket.Conn
	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *Session {
	s := &Session{id: uuid.New().String(), conn: conn}
	s.state.Store(int32(SessionNew))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) open() {
	s.state.CompareAndSwap(int32(SessionNew), int32(SessionOpen))
}

// Read blocks until a text or binary frame is received
func (s *Session) Read() ([]byte, error) {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			s.Close()
			return nil, err
		}

		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *Session) Write(data []byte) error {
	if s.State() != SessionOpen {
		return fmt.Errorf(`session %s is %s - %w`, s.id, s.State(), ErrSessionClosed)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(SessionClosing))
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ``), time.Now().Add(writeTimeout))
		s.writeMu.Unlock()
		_ = s.conn.Close()
		s.state.Store(int32(SessionClosed))
	})
}

// Hub keeps the open websocket sessions to push events to
type Hub struct {
	upgrader websocket.Upgrader
	sessions map[string]*Session
	mu       *sync.RWMutex
	log      log.Logger
}

func NewHub(logger log.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sessions: map[string]*Session{},
		mu:       &sync.RWMutex{},
		log:      logger,
	}
}

func (h *Hub) Accept(w http.ResponseWriter, r *http.Request) (*Session, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf(`upgrading websocket connection failed - %v`, err)
	}

	s := newSession(conn)
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	s.open()
	h.log.Trace(fmt.Sprintf(`websocket session %s opened from %s`, s.id, r.RemoteAddr))
	return s, nil
}

func (h *Hub) Remove(s *Session) {
	s.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}

func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ss := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		ss = append(ss, s)
	}
	return ss
}

// Broadcast writes the frame to all open sessions. Sessions failing the
// write are closed.
func (h *Hub) Broadcast(data []byte) {
	for _, s := range h.Sessions() {
		if s.State() != SessionOpen {
			continue
		}

		if err := s.Write(data); err != nil {
			h.log.Debug(fmt.Sprintf(`writing to websocket session %s failed - %v`, s.id, err))
			h.Remove(s)
		}
	}
}

func (h *Hub) Close() {
	for _, s := range h.Sessions() {
		h.Remove(s)
	}
}
