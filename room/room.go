// room/room.go
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/network"
	"github.com/wfunc/landfluss/protocol"
	"github.com/wfunc/landfluss/session"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrWrongPassword   = errors.New("wrong room password")
	ErrVersionMismatch = errors.New("protocol version mismatch")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrUnknownTarget   = errors.New("unknown target user")
	ErrNotConnected    = errors.New("player is not connected")
)

// Options configure a new room.
type Options struct {
	MaxPlayers int
	Password   string
	Version    string
	Tokens     TokenIssuer
}

// Player is a seat in a room. It keeps its user id across reconnects.
type Player struct {
	UserID    string
	Name      string
	Session   *session.Session
	Connected bool
}

func (p *Player) user() models.User {
	return models.User{ID: p.UserID, Name: p.Name, Connected: p.Connected}
}

type pendingDelivery struct {
	id      string
	sender  string
	waiting map[string]struct{}
	sentAt  time.Time
}

// Room relays the messages of one game. Every frame of a room is sent while
// holding mutex, so all players see messages and user events in one order.
type Room struct {
	ID         string
	HostID     string
	Version    string
	MaxPlayers int
	CreatedAt  time.Time

	passwordHash []byte
	players      map[string]*Player
	order        []string
	seq          uint64
	pending      map[uint64]*pendingDelivery
	lastActive   time.Time
	tokens       TokenIssuer

	broadcaster Broadcaster
	observer    Observer
	mutex       sync.Mutex
	playerMutex sync.RWMutex
}

// NewRoom creates an empty room. The first player to join becomes its host.
func NewRoom(id string, opts Options, broadcaster Broadcaster, observer Observer) (*Room, error) {
	if observer == nil {
		observer = nopObserver{}
	}
	r := &Room{
		ID:          id,
		Version:     opts.Version,
		MaxPlayers:  opts.MaxPlayers,
		CreatedAt:   time.Now(),
		players:     make(map[string]*Player),
		pending:     make(map[uint64]*pendingDelivery),
		lastActive:  time.Now(),
		tokens:      opts.Tokens,
		broadcaster: broadcaster,
		observer:    observer,
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		r.passwordHash = hash
	}
	return r, nil
}

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	return len(r.passwordHash) > 0
}

// Join seats a new player. The session's UserID is set to the new player's id.
func (r *Room) Join(s *session.Session, hello network.Hello) (network.Session, error) {
	if r.Version != "" && hello.Version != r.Version {
		return network.Session{}, fmt.Errorf("%w: room runs %q, peer runs %q", ErrVersionMismatch, r.Version, hello.Version)
	}
	if r.HasPassword() && bcrypt.CompareHashAndPassword(r.passwordHash, []byte(hello.Password)) != nil {
		return network.Session{}, ErrWrongPassword
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.playerMutex.Lock()
	if r.MaxPlayers > 0 && r.connectedCount() >= r.MaxPlayers {
		r.playerMutex.Unlock()
		return network.Session{}, ErrRoomFull
	}
	player := &Player{UserID: uuid.NewString(), Name: hello.Name, Session: s, Connected: true}
	if player.Name == "" {
		player.Name = "Player " + fmt.Sprint(len(r.order)+1)
	}
	r.players[player.UserID] = player
	r.order = append(r.order, player.UserID)
	if r.HostID == "" {
		r.HostID = player.UserID
	}
	s.UserID = player.UserID
	s.RoomID = r.ID
	s.SetName(player.Name)
	r.lastActive = time.Now()
	r.playerMutex.Unlock()

	logger.Log.Infow("Player joined", "room", r.ID, "user", player.UserID, "name", player.Name, "host", r.HostID == player.UserID)
	info := r.welcome(s, player, false)
	r.announce(protocol.EventUserConnect, player, false)
	return info, nil
}

// Resume puts a returning player back on its seat with a new session.
func (r *Room) Resume(s *session.Session, userID string) (network.Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.playerMutex.Lock()
	player, ok := r.players[userID]
	if !ok {
		r.playerMutex.Unlock()
		return network.Session{}, ErrUnknownPlayer
	}
	previous := player.Session
	player.Session = s
	player.Connected = true
	s.UserID = userID
	s.RoomID = r.ID
	s.SetName(player.Name)
	r.lastActive = time.Now()
	r.playerMutex.Unlock()

	if previous != nil && previous != s {
		previous.Close()
	}
	r.observer.PlayerReconnected()
	logger.Log.Infow("Player resumed", "room", r.ID, "user", userID)
	info := r.welcome(s, player, true)
	r.announce(protocol.EventUserReconnect, player, false)
	return info, nil
}

// Leave marks the player of s as disconnected. Leaving with a stale
// session of a resumed player does nothing.
func (r *Room) Leave(s *session.Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.playerMutex.Lock()
	player, ok := r.players[s.UserID]
	if !ok || player.Session != s {
		r.playerMutex.Unlock()
		return
	}
	player.Session = nil
	player.Connected = false
	r.lastActive = time.Now()
	r.playerMutex.Unlock()

	logger.Log.Infow("Player left", "room", r.ID, "user", player.UserID)
	r.announce(protocol.EventUserDisconnect, player, false)

	for seq := range r.pending {
		r.acknowledge(seq, player.UserID)
	}
}

// Rename changes a player's display name and tells everyone, the player included.
func (r *Room) Rename(userID, name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.playerMutex.Lock()
	player, ok := r.players[userID]
	if !ok {
		r.playerMutex.Unlock()
		return ErrUnknownPlayer
	}
	player.Name = name
	if player.Session != nil {
		player.Session.SetName(name)
	}
	r.playerMutex.Unlock()

	r.announce(protocol.EventUserUpdate, player, true)
	return nil
}

// Relay stamps msg with its sender and the room's next sequence number and
// delivers it to every connected player, or only to msg.Target.
func (r *Room) Relay(sender string, msg network.Message) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.playerMutex.RLock()
	if p, ok := r.players[sender]; !ok || !p.Connected {
		r.playerMutex.RUnlock()
		return ErrNotConnected
	}
	var recipients []string
	for _, id := range r.order {
		p := r.players[id]
		if p.Connected && (msg.Target == "" || msg.Target == id) {
			recipients = append(recipients, id)
		}
	}
	r.playerMutex.RUnlock()

	if msg.Target != "" && len(recipients) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, msg.Target)
	}

	r.seq++
	msg.Sender = sender
	msg.Seq = r.seq
	r.lastActive = time.Now()
	r.observer.MessageRelayed(msg.Type)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	delivery := &pendingDelivery{id: msg.ID, sender: sender, waiting: make(map[string]struct{}, len(recipients)), sentAt: time.Now()}
	for _, id := range recipients {
		delivery.waiting[id] = struct{}{}
	}
	r.pending[msg.Seq] = delivery

	if err := r.broadcaster.BroadcastToUsers(r.ID, recipients, network.FrameMessage, data); err != nil {
		logger.Log.Warnw("Relay failed", "room", r.ID, "seq", msg.Seq, "error", err)
	}
	return nil
}

// Ack records that userID processed message seq.
func (r *Room) Ack(userID string, seq uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.acknowledge(seq, userID)
}

func (r *Room) acknowledge(seq uint64, userID string) {
	delivery, ok := r.pending[seq]
	if !ok {
		return
	}
	delete(delivery.waiting, userID)
	if len(delivery.waiting) > 0 {
		return
	}
	delete(r.pending, seq)
	r.observer.DeliveryCompleted(time.Since(delivery.sentAt))
	r.notifyDelivered(delivery, "")
}

// ExpireDeliveries fails every delivery older than timeout.
func (r *Room) ExpireDeliveries(timeout time.Duration) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	expired := 0
	cutoff := time.Now().Add(-timeout)
	for seq, delivery := range r.pending {
		if delivery.sentAt.After(cutoff) {
			continue
		}
		delete(r.pending, seq)
		expired++
		r.observer.DeliveryTimedOut()
		r.notifyDelivered(delivery, network.ReasonTimeout)
	}
	return expired
}

func (r *Room) notifyDelivered(delivery *pendingDelivery, reason string) {
	if delivery.id == "" {
		return
	}
	data, _ := json.Marshal(network.Delivered{ID: delivery.id, Error: reason})
	_ = r.broadcaster.BroadcastToUsers(r.ID, []string{delivery.sender}, network.FrameDelivered, data)
}

// announce tells connected players about a user event. The subject itself
// is only told when self is true.
func (r *Room) announce(event protocol.Event, player *Player, self bool) {
	data, _ := json.Marshal(network.UserEvent{Event: string(event), User: player.user()})
	if self {
		if err := r.broadcaster.BroadcastToRoom(r.ID, network.FrameUserEvent, data); err != nil {
			logger.Log.Warnw("User event failed", "room", r.ID, "event", event, "error", err)
		}
		return
	}

	r.playerMutex.RLock()
	var targets []string
	for _, id := range r.order {
		if r.players[id].Connected && id != player.UserID {
			targets = append(targets, id)
		}
	}
	r.playerMutex.RUnlock()

	if err := r.broadcaster.BroadcastToUsers(r.ID, targets, network.FrameUserEvent, data); err != nil {
		logger.Log.Warnw("User event failed", "room", r.ID, "event", event, "error", err)
	}
}

// welcome queues the Session frame on s. It runs under mutex so the frame
// precedes every message relayed to the new session.
func (r *Room) welcome(s *session.Session, player *Player, resumed bool) network.Session {
	info := network.Session{
		Room:    r.ID,
		UserID:  player.UserID,
		HostID:  r.HostID,
		Resumed: resumed,
		Users:   r.Users(),
	}
	if r.tokens != nil {
		token, err := r.tokens.Issue(r.ID, player.UserID)
		if err != nil {
			logger.Log.Errorw("Failed to issue resume token", "room", r.ID, "user", player.UserID, "error", err)
		}
		info.Token = token
	}
	data, err := json.Marshal(info)
	if err == nil {
		err = s.Send(network.FrameSession, data)
	}
	if err != nil {
		logger.Log.Warnw("Failed to send session", "room", r.ID, "user", player.UserID, "error", err)
	}
	return info
}

func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Users lists the connected players in join order.
func (r *Room) Users() []models.User {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	users := make([]models.User, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Connected {
			users = append(users, p.user())
		}
	}
	return users
}

// Sessions returns the sessions of the connected players (thread-safe).
func (r *Room) Sessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.players))
	for _, id := range r.order {
		if p := r.players[id]; p.Session != nil {
			sessions = append(sessions, p.Session)
		}
	}
	return sessions
}

// SessionsOf returns the sessions of the given connected players in that order.
func (r *Room) SessionsOf(userIDs []string) []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := r.players[id]; ok && p.Session != nil {
			sessions = append(sessions, p.Session)
		}
	}
	return sessions
}

// Player returns a copy of a seat.
func (r *Room) Player(userID string) (Player, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	p, ok := r.players[userID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// ConnectedCount is the number of connected players.
func (r *Room) ConnectedCount() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return r.connectedCount()
}

// PendingDeliveries is the number of messages not acknowledged by every recipient.
func (r *Room) PendingDeliveries() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.pending)
}

// IdleSince reports when the room last had a connected player or message.
func (r *Room) IdleSince() (time.Time, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.ConnectedCount() > 0 {
		return time.Time{}, false
	}
	return r.lastActive, true
}

// Close disconnects every player.
func (r *Room) Close() {
	for _, s := range r.Sessions() {
		s.Close()
	}
}
