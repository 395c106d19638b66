package room

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/wfunc/landfluss/logger"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of generated room codes.
const CodeLength = 8

// Manager 管理所有房间
type Manager struct {
	rooms       map[string]*Room
	broadcaster Broadcaster
	observer    Observer
	mutex       sync.RWMutex
}

// NewRoomManager creates a manager whose rooms deliver through broadcaster.
func NewRoomManager(broadcaster Broadcaster, observer Observer) *Manager {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Manager{
		rooms:       make(map[string]*Room),
		broadcaster: broadcaster,
		observer:    observer,
	}
}

// SetBroadcaster replaces the broadcaster of rooms created afterwards.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.broadcaster = b
}

// CreateRoom creates a room with a fresh random code.
func (m *Manager) CreateRoom(opts Options) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var id string
	for {
		id = newRoomCode()
		if _, exists := m.rooms[id]; !exists {
			break
		}
	}
	room, err := NewRoom(id, opts, m.broadcaster, m.observer)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = room
	logger.Log.Infow("Room created", "room", id, "maxPlayers", opts.MaxPlayers, "password", room.HasPassword())
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Count returns the number of open rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func (m *Manager) list() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Reap fails overdue deliveries and removes rooms nobody has been
// connected to for longer than idle. It returns the number of removed rooms.
func (m *Manager) Reap(idle, deliveryTimeout time.Duration) int {
	cutoff := time.Now().Add(-idle)
	removed := 0
	for _, r := range m.list() {
		if deliveryTimeout > 0 {
			if n := r.ExpireDeliveries(deliveryTimeout); n > 0 {
				logger.Log.Warnw("Deliveries timed out", "room", r.ID, "count", n)
			}
		}
		if since, empty := r.IdleSince(); empty && !since.After(cutoff) {
			m.RemoveRoom(r.ID)
			removed++
			logger.Log.Infow("Idle room removed", "room", r.ID)
		}
	}
	return removed
}

// CloseAll closes every room.
func (m *Manager) CloseAll() {
	for _, r := range m.list() {
		m.RemoveRoom(r.ID)
	}
}

func newRoomCode() string {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
