package protocol

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotInitialized is returned when sending without a transport.
	ErrNotInitialized = errors.New("protocol: network not initialized")
	// ErrDeliveryTimeout is returned when not every peer processed a message in time.
	ErrDeliveryTimeout = errors.New("protocol: delivery timed out")
	// ErrDisconnected is returned for messages still pending when the transport closed.
	ErrDisconnected = errors.New("protocol: transport disconnected")
)

// Completion resolves once every recipient processed a message.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion returns a pending completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Failed returns a completion already resolved with err.
func Failed(err error) *Completion {
	c := NewCompletion()
	c.Resolve(err)
	return c
}

// Resolve settles the completion. Only the first call has an effect.
func (c *Completion) Resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the completion is settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the delivery error once settled, nil before.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until every recipient processed the message or ctx ends.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
