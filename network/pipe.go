package network

import (
	"net"
	"sync"
	"time"
)

// ErrClosed is returned by a pipe end after either end was closed.
var ErrClosed = net.ErrClosed

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// PipeConnection is one end of an in-memory connection. Packets go through
// the same framing as on a websocket.
type PipeConnection struct {
	name      string
	in        <-chan []byte
	out       chan<- []byte
	done      chan struct{}
	closeOnce *sync.Once
	heartbeat time.Duration
	mu        sync.Mutex
}

// Pipe returns two connected ends.
func Pipe() (*PipeConnection, *PipeConnection) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &PipeConnection{name: "pipe-a", in: ba, out: ab, done: done, closeOnce: once}
	b := &PipeConnection{name: "pipe-b", in: ab, out: ba, done: done, closeOnce: once}
	return a, b
}

func (c *PipeConnection) Send(msgID uint16, data []byte) error {
	packet, err := EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- packet:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *PipeConnection) ReadPacket() (*Packet, error) {
	c.mu.Lock()
	heartbeat := c.heartbeat
	c.mu.Unlock()

	var timeout <-chan time.Time
	if heartbeat > 0 {
		timer := time.NewTimer(heartbeat * 2)
		defer timer.Stop()
		timeout = timer.C
	}

	// Packets sent before a close are still delivered.
	select {
	case packet := <-c.in:
		return DecodePacket(packet)
	default:
	}

	select {
	case packet := <-c.in:
		return DecodePacket(packet)
	case <-c.done:
		return nil, ErrClosed
	case <-timeout:
		return nil, errTimeout
	}
}

func (c *PipeConnection) SetHeartbeat(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeat = interval
}

// Close closes both ends.
func (c *PipeConnection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *PipeConnection) RemoteAddr() net.Addr {
	return pipeAddr(c.name)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "network: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var errTimeout net.Error = timeoutError{}
