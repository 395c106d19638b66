package network

import (
	"encoding/json"

	"github.com/wfunc/landfluss/models"
)

// Frame ids of the relay protocol.
const (
	FrameHeartbeat = 1
	FrameHello     = 101
	FrameSession   = 102
	FrameError     = 103
	FrameRename    = 104
	FrameMessage   = 201
	FrameAck       = 202
	FrameDelivered = 203
	FrameUserEvent = 301
)

// Error codes carried by an Error frame.
const (
	CodeBadRequest      = "bad_request"
	CodeRoomNotFound    = "room_not_found"
	CodeRoomFull        = "room_full"
	CodeWrongPassword   = "wrong_password"
	CodeVersionMismatch = "version_mismatch"
	CodeInvalidToken    = "invalid_token"
	CodeNotJoined       = "not_joined"
)

// Hello opens a session. Create asks for a new room; Token resumes a
// previous session of the same user.
type Hello struct {
	Room     string `json:"room,omitempty"`
	Create   bool   `json:"create,omitempty"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Version  string `json:"version"`
	Token    string `json:"token,omitempty"`
}

// Session answers a Hello.
type Session struct {
	Room    string        `json:"room"`
	UserID  string        `json:"userId"`
	HostID  string        `json:"hostId"`
	Token   string        `json:"token"`
	Resumed bool          `json:"resumed"`
	Users   []models.User `json:"users"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

type Rename struct {
	Name string `json:"name"`
}

// Message is an application message. ID is chosen by the sender; Sender and
// Seq are stamped by the relay.
type Message struct {
	ID      string          `json:"id"`
	Type    uint16          `json:"type"`
	Target  string          `json:"target,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack tells the relay that a recipient processed message Seq.
type Ack struct {
	Seq uint64 `json:"seq"`
}

// Delivered tells a sender that every recipient processed its message ID,
// or why not.
type Delivered struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// ReasonTimeout is the Delivered error of a message not acknowledged in time.
const ReasonTimeout = "delivery timed out"

// UserEvent announces a change of the room's user directory.
type UserEvent struct {
	Event string      `json:"event"`
	User  models.User `json:"user"`
}
