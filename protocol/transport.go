package protocol

import (
	"github.com/wfunc/landfluss/models"
)

// Event is a change in the transport's user directory.
type Event string

const (
	EventUserConnect    Event = "userconnect"
	EventUserDisconnect Event = "userdisconnect"
	EventUserUpdate     Event = "userupdate"
	EventUserReconnect  Event = "userreconnect"
)

// Meta describes a delivered message. Seq is assigned by the relay and
// totally orders every message of a game.
type Meta struct {
	Sender string
	Seq    uint64
}

// Handler processes one delivered message.
type Handler func(payload []byte, meta Meta)

// UserHandler is called on user directory events.
type UserHandler func(user models.User)

// Transport delivers messages to every connected peer, the sender included.
//
// Implementations invoke message handlers and user event handlers one at a
// time on a single goroutine, in delivery order.
type Transport interface {
	// UserID is the local peer's id.
	UserID() string
	// IsHost reports whether the local peer hosts the game.
	IsHost() bool
	// CurrentUsers lists the connected users, the local one included.
	CurrentUsers() []models.User
	// Send delivers payload to every peer, or only to target when it is not empty.
	Send(msgType MsgType, payload []byte, target string) *Completion
	Subscribe(msgType MsgType, handler Handler)
	On(event Event, handler UserHandler)
}

// ReplicatedStateMachine is state derived only from the ordered message
// stream. Applying the same messages in the same order to the same prior
// state yields the same state on every peer.
type ReplicatedStateMachine interface {
	ApplyMessage(msgType MsgType, payload []byte, meta Meta) error
}
