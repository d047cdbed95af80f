package collab

import (
	"sync"

	"github.com/sirupsen/logrus"

	"docshub/core"
)

// Registry owns the map from resource key to live room. The map is
// never exposed; all access goes through Join, Leave and Lookup. The
// registry lock guards only the map itself — per-room state is guarded
// by each room's own lock.
type Registry struct {
	mu    sync.Mutex
	rooms map[core.ResourceKey]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[core.ResourceKey]*Room)}
}

// Join admits a connection into the room for its resource key, creating
// the room atomically on first join. Concurrent joins for the same new
// key land in exactly one room.
func (g *Registry) Join(c *Conn) *Room {
	key := c.Key()
	for {
		g.mu.Lock()
		room, ok := g.rooms[key]
		if !ok {
			room = newRoom(key)
			g.rooms[key] = room
			logrus.WithField("room", key.String()).Info("room created")
		}
		g.mu.Unlock()

		if room.add(c) {
			return room
		}

		// The room emptied and closed between lookup and add. Drop the
		// stale entry, if it is still there, and retry with a fresh room.
		g.mu.Lock()
		if g.rooms[key] == room {
			delete(g.rooms, key)
		}
		g.mu.Unlock()
	}
}

// Leave removes a connection from its room and disposes the room when
// the last connection is gone. A room never outlives the leave that
// emptied it.
func (g *Registry) Leave(c *Conn) {
	key := c.Key()
	g.mu.Lock()
	room, ok := g.rooms[key]
	g.mu.Unlock()
	if !ok {
		return
	}

	if room.remove(c) {
		g.mu.Lock()
		if g.rooms[key] == room {
			delete(g.rooms, key)
		}
		g.mu.Unlock()
		logrus.WithField("room", key.String()).Info("room destroyed")
	}
}

// Lookup returns the live room for a key, if any.
func (g *Registry) Lookup(key core.ResourceKey) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[key]
	return room, ok
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
