package room

import "time"

// Broadcaster delivers frames to the sessions of a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToUsers(roomID string, userIDs []string, msgID uint16, data []byte) error
}

// TokenIssuer signs the resume tokens handed out on join.
type TokenIssuer interface {
	Issue(roomID, userID string) (string, error)
}

// Observer receives relay statistics.
type Observer interface {
	MessageRelayed(msgType uint16)
	DeliveryCompleted(latency time.Duration)
	DeliveryTimedOut()
	PlayerReconnected()
}

type nopObserver struct{}

func (nopObserver) MessageRelayed(uint16)            {}
func (nopObserver) DeliveryCompleted(time.Duration) {}
func (nopObserver) DeliveryTimedOut()               {}
func (nopObserver) PlayerReconnected()              {}
