// Package client connects a turn engine to the relay. A Peer implements
// protocol.Transport on top of a relay connection.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/network"
	"github.com/wfunc/landfluss/protocol"
)

var (
	ErrClosed         = errors.New("client: peer closed")
	ErrDeliveryFailed = errors.New("client: delivery failed")
	ErrHandshake      = errors.New("client: unexpected handshake frame")
)

// DefaultDeliveryTimeout bounds how long a completion waits for the relay.
const DefaultDeliveryTimeout = 10 * time.Second

type Options struct {
	Name            string
	Password        string
	DeliveryTimeout time.Duration
	Heartbeat       time.Duration
}

type pendingSend struct {
	completion *protocol.Completion
	timer      *time.Timer
}

// Peer is one player's connection to a relay room.
type Peer struct {
	opts Options

	mu       sync.RWMutex
	conn     network.Connection
	info     network.Session
	users    map[string]models.User
	order    []string
	handlers map[protocol.MsgType][]protocol.Handler
	events   map[protocol.Event][]protocol.UserHandler
	pending  map[string]*pendingSend
	closed   bool
}

var _ protocol.Transport = (*Peer)(nil)

// Dial opens a websocket to url and joins per hello.
func Dial(ctx context.Context, url string, hello network.Hello, opts Options) (*Peer, error) {
	conn, err := dialWS(ctx, url)
	if err != nil {
		return nil, err
	}
	return Connect(conn, hello, opts)
}

func dialWS(ctx context.Context, url string) (network.Connection, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return network.NewWSConnection(ws), nil
}

// Connect performs the handshake on conn. The connection is closed on failure.
func Connect(conn network.Connection, hello network.Hello, opts Options) (*Peer, error) {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if hello.Version == "" {
		hello.Version = protocol.Version
	}
	if hello.Name == "" {
		hello.Name = opts.Name
	}
	if hello.Password == "" {
		hello.Password = opts.Password
	}

	p := &Peer{
		opts:     opts,
		handlers: make(map[protocol.MsgType][]protocol.Handler),
		events:   make(map[protocol.Event][]protocol.UserHandler),
		pending:  make(map[string]*pendingSend),
	}
	if err := p.attach(conn, hello); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Peer) attach(conn network.Connection, hello network.Hello) error {
	conn.SetHeartbeat(p.opts.Heartbeat)
	info, err := handshake(conn, hello)
	if err != nil {
		conn.Close()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = conn
	p.info = info
	p.users = make(map[string]models.User, len(info.Users))
	p.order = p.order[:0]
	for _, u := range info.Users {
		p.users[u.ID] = u
		p.order = append(p.order, u.ID)
	}
	logger.Log.Infow("Joined room", "room", info.Room, "user", info.UserID, "host", info.HostID, "resumed", info.Resumed)
	return nil
}

func handshake(conn network.Connection, hello network.Hello) (network.Session, error) {
	if err := network.SendJSON(conn, network.FrameHello, hello); err != nil {
		return network.Session{}, err
	}
	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			return network.Session{}, err
		}
		switch packet.MsgID {
		case network.FrameHeartbeat:
			continue
		case network.FrameSession:
			var info network.Session
			if err := packet.Decode(&info); err != nil {
				return network.Session{}, err
			}
			return info, nil
		case network.FrameError:
			frame := &network.Error{}
			if err := packet.Decode(frame); err != nil {
				return network.Session{}, err
			}
			return network.Session{}, frame
		default:
			return network.Session{}, fmt.Errorf("%w: %d", ErrHandshake, packet.MsgID)
		}
	}
}

// Resume rejoins the room on conn with the token of the current session and
// tells local listeners about the peer's own reconnect.
func (p *Peer) Resume(conn network.Connection) error {
	p.mu.RLock()
	token := p.info.Token
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := p.attach(conn, network.Hello{Token: token, Version: protocol.Version}); err != nil {
		return err
	}
	p.emit(protocol.EventUserReconnect, p.self())
	return nil
}

// Redial opens a new websocket to url and resumes the session on it.
func (p *Peer) Redial(ctx context.Context, url string) error {
	conn, err := dialWS(ctx, url)
	if err != nil {
		return err
	}
	return p.Resume(conn)
}

// Serve reads from the relay until the connection fails or ctx is done.
// Handlers run on this goroutine.
func (p *Peer) Serve(ctx context.Context) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	if p.opts.Heartbeat > 0 {
		go p.heartbeat(conn, stop)
	}

	defer p.failPending(protocol.ErrDisconnected)
	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := p.handlePacket(conn, packet); err != nil {
			logger.Log.Warnw("Bad frame from relay", "frame", packet.MsgID, "error", err)
		}
	}
}

func (p *Peer) heartbeat(conn network.Connection, stop <-chan struct{}) {
	ticker := time.NewTicker(p.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Send(network.FrameHeartbeat, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (p *Peer) handlePacket(conn network.Connection, packet *network.Packet) error {
	switch packet.MsgID {
	case network.FrameHeartbeat:
	case network.FrameMessage:
		var msg network.Message
		if err := packet.Decode(&msg); err != nil {
			return err
		}
		p.dispatch(msg)
		return network.SendJSON(conn, network.FrameAck, network.Ack{Seq: msg.Seq})
	case network.FrameUserEvent:
		var ev network.UserEvent
		if err := packet.Decode(&ev); err != nil {
			return err
		}
		p.applyUserEvent(protocol.Event(ev.Event), ev.User)
	case network.FrameDelivered:
		var d network.Delivered
		if err := packet.Decode(&d); err != nil {
			return err
		}
		p.resolve(d)
	case network.FrameError:
		var frame network.Error
		if err := packet.Decode(&frame); err != nil {
			return err
		}
		logger.Log.Warnw("Relay error", "code", frame.Code, "message", frame.Message)
	default:
		logger.Log.Debugw("Ignoring frame", "frame", packet.MsgID)
	}
	return nil
}

func (p *Peer) dispatch(msg network.Message) {
	p.mu.RLock()
	handlers := append([]protocol.Handler(nil), p.handlers[protocol.MsgType(msg.Type)]...)
	p.mu.RUnlock()

	meta := protocol.Meta{Sender: msg.Sender, Seq: msg.Seq}
	for _, h := range handlers {
		h(msg.Payload, meta)
	}
}

func (p *Peer) applyUserEvent(event protocol.Event, user models.User) {
	p.mu.Lock()
	existing, known := p.users[user.ID]
	switch event {
	case protocol.EventUserConnect, protocol.EventUserReconnect:
		user.Connected = true
	case protocol.EventUserDisconnect:
		user.Connected = false
	case protocol.EventUserUpdate:
		if known {
			user.Connected = existing.Connected
		}
	}
	if !known {
		p.order = append(p.order, user.ID)
	}
	p.users[user.ID] = user
	p.mu.Unlock()

	p.emit(event, user)
}

func (p *Peer) emit(event protocol.Event, user models.User) {
	p.mu.RLock()
	handlers := append([]protocol.UserHandler(nil), p.events[event]...)
	p.mu.RUnlock()
	for _, h := range handlers {
		h(user)
	}
}

func (p *Peer) resolve(d network.Delivered) {
	p.mu.Lock()
	ps, ok := p.pending[d.ID]
	delete(p.pending, d.ID)
	p.mu.Unlock()
	if !ok {
		return
	}
	ps.timer.Stop()
	switch d.Error {
	case "":
		ps.completion.Resolve(nil)
	case network.ReasonTimeout:
		ps.completion.Resolve(protocol.ErrDeliveryTimeout)
	default:
		ps.completion.Resolve(fmt.Errorf("%w: %s", ErrDeliveryFailed, d.Error))
	}
}

func (p *Peer) failPending(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]*pendingSend)
	p.mu.Unlock()
	for _, ps := range pending {
		ps.timer.Stop()
		ps.completion.Resolve(err)
	}
}

func (p *Peer) self() models.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.users[p.info.UserID]
}

func (p *Peer) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.UserID
}

func (p *Peer) IsHost() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.UserID != "" && p.info.UserID == p.info.HostID
}

// Room is the code of the joined room.
func (p *Peer) Room() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Room
}

// Token resumes this peer's seat after a reconnect.
func (p *Peer) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Token
}

func (p *Peer) CurrentUsers() []models.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]models.User, 0, len(p.order))
	for _, id := range p.order {
		if u := p.users[id]; u.Connected {
			users = append(users, u)
		}
	}
	return users
}

// User looks up a user, connected or not.
func (p *Peer) User(id string) (models.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[id]
	return u, ok
}

func (p *Peer) Send(msgType protocol.MsgType, payload []byte, target string) *protocol.Completion {
	p.mu.Lock()
	if p.closed || p.conn == nil {
		p.mu.Unlock()
		return protocol.Failed(ErrClosed)
	}
	conn := p.conn
	id := uuid.NewString()
	completion := protocol.NewCompletion()
	ps := &pendingSend{completion: completion}
	ps.timer = time.AfterFunc(p.opts.DeliveryTimeout, func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		completion.Resolve(protocol.ErrDeliveryTimeout)
	})
	p.pending[id] = ps
	p.mu.Unlock()

	msg := network.Message{ID: id, Type: uint16(msgType), Target: target, Payload: json.RawMessage(payload)}
	if err := network.SendJSON(conn, network.FrameMessage, msg); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		ps.timer.Stop()
		completion.Resolve(fmt.Errorf("send %s: %w", msgType, err))
	}
	return completion
}

func (p *Peer) Subscribe(msgType protocol.MsgType, handler protocol.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[msgType] = append(p.handlers[msgType], handler)
}

func (p *Peer) On(event protocol.Event, handler protocol.UserHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[event] = append(p.events[event], handler)
}

// Rename changes the local user's name for everyone.
func (p *Peer) Rename(name string) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return ErrClosed
	}
	return network.SendJSON(conn, network.FrameRename, network.Rename{Name: name})
}

// Close leaves the room for good.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.mu.Unlock()

	p.failPending(ErrClosed)
	if conn == nil {
		return nil
	}
	return conn.Close()
}
