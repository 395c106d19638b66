// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/landfluss/network"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("session send queue full")
)

// DefaultQueueSize is the number of frames a session buffers for a slow peer.
const DefaultQueueSize = 512

type outbound struct {
	msgID uint16
	data  []byte
}

// Session is one peer connection to the relay. Frames are written by a
// dedicated goroutine so a slow peer never blocks the room.
type Session struct {
	ID        string
	Conn      network.Connection
	UserID    string
	RoomID    string
	CreatedAt time.Time

	name       string
	lastActive time.Time
	queue      chan outbound
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		queue:      make(chan outbound, DefaultQueueSize),
		done:       make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case out := <-s.queue:
			if err := s.Conn.Send(out.msgID, out.data); err != nil {
				s.Close()
				return
			}
		}
	}
}

// Send queues a frame. It never blocks.
func (s *Session) Send(msgID uint16, data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.queue <- outbound{msgID: msgID, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Touch records activity from the peer.
func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Name() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.name
}

func (s *Session) SetName(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.name = name
}

func (s *Session) GetID() string {
	return s.ID
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
}

// Manager tracks every open session of the relay.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every open session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	for _, s := range m.All() {
		s.Close()
	}
}
