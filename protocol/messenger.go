package protocol

import (
	"encoding/json"
	"fmt"
)

// Messenger is a typed, JSON encoding front of a Transport.
type Messenger struct {
	transport Transport
}

// NewMessenger wraps t. A nil transport is allowed; sends then fail with ErrNotInitialized.
func NewMessenger(t Transport) *Messenger {
	return &Messenger{transport: t}
}

// Transport returns the wrapped transport, possibly nil.
func (m *Messenger) Transport() Transport {
	return m.transport
}

// Send broadcasts payload to every peer.
func (m *Messenger) Send(msgType MsgType, payload any) *Completion {
	return m.SendTo("", msgType, payload)
}

// SendTo delivers payload to target only, or to everyone when target is empty.
func (m *Messenger) SendTo(target string, msgType MsgType, payload any) *Completion {
	if m == nil || m.transport == nil {
		return Failed(fmt.Errorf("send %s: %w", msgType, ErrNotInitialized))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Failed(fmt.Errorf("encode %s: %w", msgType, err))
	}
	return m.transport.Send(msgType, data, target)
}

// SubscribeAll routes every catalogue message to handler.
func (m *Messenger) SubscribeAll(handler func(msgType MsgType, payload []byte, meta Meta)) error {
	if m == nil || m.transport == nil {
		return ErrNotInitialized
	}
	for _, msgType := range MsgTypes {
		msgType := msgType
		m.transport.Subscribe(msgType, func(payload []byte, meta Meta) {
			handler(msgType, payload, meta)
		})
	}
	return nil
}

// Decode unmarshals a payload of msgType into T.
func Decode[T any](msgType MsgType, payload []byte) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", msgType, err)
	}
	return v, nil
}
