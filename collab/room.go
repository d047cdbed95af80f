package collab

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"docshub/core"
)

// Room is the transient set of connections collaborating on one
// resource. All membership mutation and the presence broadcasts it
// implies happen under the room's own lock, so joins, leaves and
// publishes on one room are linearized while distinct rooms never
// contend with each other.
type Room struct {
	key core.ResourceKey

	mu       sync.Mutex
	members  map[*Conn]struct{}
	presence map[string]int // username -> live connection count
	closed   bool
}

func newRoom(key core.ResourceKey) *Room {
	return &Room{
		key:      key,
		members:  make(map[*Conn]struct{}),
		presence: make(map[string]int),
	}
}

func (r *Room) Key() core.ResourceKey { return r.key }

// add admits a connection, announces it to the other members and sends
// the full presence set to the joiner. Returns false when the room has
// already been disposed; the registry retries with a fresh room.
func (r *Room) add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	r.members[c] = struct{}{}
	r.presence[c.User().Username]++
	c.SetState(StateOpen)

	r.broadcastLocked(core.UserJoined{Username: c.User().Username}, c)

	// The joiner gets the full current set rather than relying on
	// individually accumulated join events, which are lossy across
	// reorderings and missed history.
	if !c.Deliver(core.ActiveUsers{Users: r.presenceLocked()}) {
		defer c.Close()
	}

	logrus.WithFields(logrus.Fields{
		"room":     r.key.String(),
		"username": c.User().Username,
		"members":  len(r.members),
	}).Debug("connection joined room")
	return true
}

// remove drops a connection, announces user_left when its identity has
// no remaining connections, and reports whether the room is now empty.
// An emptied room is marked closed so a concurrent fast rejoin gets a
// fresh room from the registry instead of racing the disposal.
func (r *Room) remove(c *Conn) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[c]; !ok {
		return false
	}

	delete(r.members, c)
	username := c.User().Username
	r.presence[username]--
	if r.presence[username] <= 0 {
		delete(r.presence, username)
		r.broadcastLocked(core.UserLeft{Username: username}, c)
	}

	logrus.WithFields(logrus.Fields{
		"room":     r.key.String(),
		"username": username,
		"members":  len(r.members),
	}).Debug("connection left room")

	if len(r.members) == 0 {
		r.closed = true
		return true
	}
	return false
}

// Publish fans a message out to every other member of the room, FIFO
// per sender. Privileged types require an editor-level role; a message
// from an insufficient role is dropped and ErrRoleViolation returned
// without disturbing the rest of the room.
func (r *Room) Publish(sender *Conn, m core.Message) error {
	if core.Privileged(m) && !sender.Role().CanEdit() {
		logrus.WithFields(logrus.Fields{
			"room":     r.key.String(),
			"username": sender.User().Username,
			"role":     sender.Role(),
			"type":     m.MessageType(),
		}).Warn("privileged message from insufficient role dropped")
		return core.ErrRoleViolation
	}

	r.mu.Lock()
	r.broadcastLocked(m, sender)
	r.mu.Unlock()
	return nil
}

// broadcastLocked delivers to all members except the excluded sender.
// Delivery is best-effort per connection: a slow or dead peer is closed
// and left for its transport loop to unregister, never blocking the
// publisher or the other members.
func (r *Room) broadcastLocked(m core.Message, except *Conn) {
	for member := range r.members {
		if member == except {
			continue
		}
		if !member.Deliver(m) {
			logrus.WithFields(logrus.Fields{
				"room":     r.key.String(),
				"username": member.User().Username,
			}).Warn("dropping slow connection")
			member.Close()
		}
	}
}

// Presence returns the distinct identities currently connected, sorted.
func (r *Room) Presence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenceLocked()
}

func (r *Room) presenceLocked() []string {
	users := make([]string, 0, len(r.presence))
	for username := range r.presence {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of member connections.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
