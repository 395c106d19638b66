// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/room"
	"github.com/wfunc/landfluss/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// RoomBroadcaster delivers frames to the sessions of the rooms a room.Manager knows about.
type RoomBroadcaster struct {
	roomManager *room.Manager
}

var _ room.Broadcaster = (*RoomBroadcaster)(nil)

func NewRoomBroadcaster(roomManager *room.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{roomManager: roomManager}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}
	b.send(r.Sessions(), msgID, data)
	return nil
}

func (b *RoomBroadcaster) BroadcastToUsers(roomID string, userIDs []string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}
	b.send(r.SessionsOf(userIDs), msgID, data)
	return nil
}

func (b *RoomBroadcaster) send(sessions []*session.Session, msgID uint16, data []byte) {
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// A full queue means the peer stopped reading; it resyncs after reconnecting.
			logger.Log.Warnw("Dropping slow session", "session", s.GetID(), "user", s.UserID, "error", err)
			s.Close()
		}
	}
}
