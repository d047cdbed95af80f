package collab

import (
	"sync"
	"sync/atomic"

	"docshub/core"
)

// ConnState is the liveness state of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

const defaultQueueSize = 32

// Conn represents one live editing session. It belongs to at most one
// room. Outbound delivery goes through a bounded queue drained by the
// transport's write pump; a full queue marks the peer as slow and the
// connection is torn down instead of blocking the publisher.
//
// Close is idempotent and never closes the outbound channel, so
// concurrent broadcasters cannot panic on a closed channel.
type Conn struct {
	user core.UserIdentity
	role core.Role
	key  core.ResourceKey

	out       chan core.Message
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
}

func NewConn(user core.UserIdentity, role core.Role, key core.ResourceKey) *Conn {
	c := &Conn{
		user: user,
		role: role,
		key:  key,
		out:  make(chan core.Message, defaultQueueSize),
		done: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) User() core.UserIdentity { return c.user }
func (c *Conn) Role() core.Role         { return c.role }
func (c *Conn) Key() core.ResourceKey   { return c.key }

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) SetState(s ConnState) {
	c.state.Store(int32(s))
}

// Outbound is the queue drained by the transport write pump.
func (c *Conn) Outbound() <-chan core.Message { return c.out }

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close signals teardown. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// Deliver enqueues a message for the peer without blocking. It returns
// false when the connection is closing or its queue is full; the caller
// is expected to schedule teardown in that case.
func (c *Conn) Deliver(m core.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- m:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
