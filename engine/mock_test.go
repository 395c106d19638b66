package engine

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func testOptions(config models.GameConfig) Options {
	return Options{
		Config: &config,
		Now:    func() time.Time { return testNow },
	}
}

type sentMessage struct {
	msgType protocol.MsgType
	payload []byte
	target  string
}

// MockTransport is a fixed user directory that records what is sent.
type MockTransport struct {
	mu       sync.Mutex
	id       string
	host     bool
	users    []models.User
	sent     []sentMessage
	handlers map[protocol.MsgType][]protocol.Handler
	events   map[protocol.Event][]protocol.UserHandler
}

func NewMockTransport(id string, host bool, userIDs ...string) *MockTransport {
	m := &MockTransport{
		id:       id,
		host:     host,
		handlers: make(map[protocol.MsgType][]protocol.Handler),
		events:   make(map[protocol.Event][]protocol.UserHandler),
	}
	for _, userID := range userIDs {
		m.users = append(m.users, models.User{ID: userID, Name: "name-" + userID, Connected: true})
	}
	return m
}

func (m *MockTransport) UserID() string { return m.id }
func (m *MockTransport) IsHost() bool   { return m.host }

func (m *MockTransport) CurrentUsers() []models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.User(nil), m.users...)
}

func (m *MockTransport) SetUsers(userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = nil
	for _, userID := range userIDs {
		m.users = append(m.users, models.User{ID: userID, Name: "name-" + userID, Connected: true})
	}
}

func (m *MockTransport) Send(msgType protocol.MsgType, payload []byte, target string) *protocol.Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{msgType: msgType, payload: payload, target: target})
	return protocol.Failed(nil)
}

func (m *MockTransport) Subscribe(msgType protocol.MsgType, handler protocol.Handler) {
	m.handlers[msgType] = append(m.handlers[msgType], handler)
}

func (m *MockTransport) On(event protocol.Event, handler protocol.UserHandler) {
	m.events[event] = append(m.events[event], handler)
}

func (m *MockTransport) Fire(event protocol.Event, user models.User) {
	for _, h := range m.events[event] {
		h(user)
	}
}

func (m *MockTransport) Sent(msgType protocol.MsgType) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.msgType == msgType {
			out = append(out, s)
		}
	}
	return out
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	return data
}

func mustApply(t *testing.T, e *TurnEngine, msgType protocol.MsgType, payload any, sender string) {
	t.Helper()
	if err := e.ApplyMessage(msgType, encode(t, payload), protocol.Meta{Sender: sender}); err != nil {
		t.Fatalf("ApplyMessage(%s from %s) failed: %v", msgType, sender, err)
	}
}

// Bus delivers every message to all connected peers in one global order,
// one peer after the other, like the relay does.
type Bus struct {
	mu      sync.Mutex
	peers   []*BusPeer
	seq     uint64
	queue   chan func()
	pending atomic.Int64
}

func NewBus() *Bus {
	b := &Bus{queue: make(chan func(), 1024)}
	go func() {
		for item := range b.queue {
			item()
			b.pending.Add(-1)
		}
	}()
	return b
}

func (b *Bus) enqueue(item func()) {
	b.pending.Add(1)
	b.queue <- item
}

// Flush waits until every queued delivery ran.
func (b *Bus) Flush(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.pending.Load() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("Bus did not drain")
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *Bus) Close() {
	close(b.queue)
}

// Join adds a connected peer. Already connected peers see userconnect.
func (b *Bus) Join(id string, host bool) *BusPeer {
	p := &BusPeer{
		bus:      b,
		id:       id,
		host:     host,
		handlers: make(map[protocol.MsgType][]protocol.Handler),
		events:   make(map[protocol.Event][]protocol.UserHandler),
	}
	b.mu.Lock()
	b.peers = append(b.peers, p)
	b.mu.Unlock()
	return p
}

// Connect marks p connected and announces it with event.
func (b *Bus) Connect(p *BusPeer, event protocol.Event) {
	b.enqueue(func() {
		b.mu.Lock()
		p.connected = true
		others := b.connectedExcept(p.id)
		b.mu.Unlock()
		if event == protocol.EventUserReconnect {
			p.fire(event, p.user())
		}
		for _, other := range others {
			other.fire(event, p.user())
		}
	})
}

func (b *Bus) Disconnect(p *BusPeer) {
	b.enqueue(func() {
		b.mu.Lock()
		p.connected = false
		others := b.connectedExcept(p.id)
		b.mu.Unlock()
		for _, other := range others {
			other.fire(protocol.EventUserDisconnect, p.user())
		}
	})
}

func (b *Bus) connectedExcept(id string) []*BusPeer {
	var out []*BusPeer
	for _, p := range b.peers {
		if p.connected && p.id != id {
			out = append(out, p)
		}
	}
	return out
}

type BusPeer struct {
	bus       *Bus
	id        string
	host      bool
	connected bool
	handlers  map[protocol.MsgType][]protocol.Handler
	events    map[protocol.Event][]protocol.UserHandler
}

func (p *BusPeer) user() models.User {
	return models.User{ID: p.id, Name: "name-" + p.id, Connected: true}
}

func (p *BusPeer) fire(event protocol.Event, user models.User) {
	for _, h := range p.events[event] {
		h(user)
	}
}

func (p *BusPeer) UserID() string { return p.id }
func (p *BusPeer) IsHost() bool   { return p.host }

func (p *BusPeer) CurrentUsers() []models.User {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	var users []models.User
	for _, peer := range p.bus.peers {
		if peer.connected {
			users = append(users, peer.user())
		}
	}
	return users
}

func (p *BusPeer) Send(msgType protocol.MsgType, payload []byte, target string) *protocol.Completion {
	completion := protocol.NewCompletion()
	b := p.bus
	b.enqueue(func() {
		b.mu.Lock()
		b.seq++
		meta := protocol.Meta{Sender: p.id, Seq: b.seq}
		var recipients []*BusPeer
		for _, peer := range b.peers {
			if peer.connected && (target == "" || peer.id == target) {
				recipients = append(recipients, peer)
			}
		}
		b.mu.Unlock()
		for _, peer := range recipients {
			for _, h := range peer.handlers[msgType] {
				h(payload, meta)
			}
		}
		completion.Resolve(nil)
	})
	return completion
}

func (p *BusPeer) Subscribe(msgType protocol.MsgType, handler protocol.Handler) {
	p.handlers[msgType] = append(p.handlers[msgType], handler)
}

func (p *BusPeer) On(event protocol.Event, handler protocol.UserHandler) {
	p.events[event] = append(p.events[event], handler)
}
