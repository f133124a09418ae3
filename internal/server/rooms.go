package server

import (
	"log"
	"sync"

	"broadchat/internal/stats"
)

// RoomManager tracks which transports are subscribed to which room
// channels. Membership is per-transport: two tabs owned by the same user
// subscribe independently.
type RoomManager struct {
	mu       sync.RWMutex
	log      *log.Logger
	registry *ConnectionRegistry
	stats    stats.StatsProvider
	rooms    map[string]map[*Client]struct{}
}

func NewRoomManager(l *log.Logger, registry *ConnectionRegistry, su stats.StatsProvider) *RoomManager {
	return &RoomManager{
		log:      l,
		registry: registry,
		stats:    su,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

func (rm *RoomManager) Join(c *Client, roomId string) error {
	if roomId == "" {
		return ErrInvalidRoom
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.rooms[roomId] == nil {
		rm.rooms[roomId] = make(map[*Client]struct{})
		rm.stats.Incr("NumActiveRooms")
	}
	rm.rooms[roomId][c] = struct{}{}

	rm.log.Printf("transport %s joined room %q", c.transportId, roomId)
	return nil
}

func (rm *RoomManager) Leave(c *Client, roomId string) error {
	if roomId == "" {
		return ErrInvalidRoom
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.removeLocked(c, roomId)
	return nil
}

// Broadcast delivers the event to every transport subscribed to the room.
// Delivery is best-effort: a transport that is gone or backed up is
// skipped, never retried or queued.
func (rm *RoomManager) Broadcast(roomId string, ev *ServerEvent) {
	rm.mu.RLock()
	members := make([]*Client, 0, len(rm.rooms[roomId]))
	for c := range rm.rooms[roomId] {
		members = append(members, c)
	}
	rm.mu.RUnlock()

	for _, c := range members {
		c.queueEvent(ev)
	}
}

// BroadcastToUser delivers the event to all of the user's live transports,
// wherever they are. If none are live the event is dropped; callers that
// need durability persist before calling this.
func (rm *RoomManager) BroadcastToUser(userId string, ev *ServerEvent) {
	clients := rm.registry.Resolve(userId)
	if len(clients) == 0 {
		rm.log.Printf("dropping %q event: user %q has no live transports", ev.Event, userId)
		return
	}

	for _, c := range clients {
		c.queueEvent(ev)
	}
}

// RemoveClient sweeps the transport out of every room it had joined.
func (rm *RoomManager) RemoveClient(c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for roomId := range rm.rooms {
		rm.removeLocked(c, roomId)
	}
}

func (rm *RoomManager) removeLocked(c *Client, roomId string) {
	members, ok := rm.rooms[roomId]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}

	delete(members, c)
	rm.log.Printf("transport %s left room %q", c.transportId, roomId)
	if len(members) == 0 {
		delete(rm.rooms, roomId)
		rm.stats.Decr("NumActiveRooms")
	}
}

func (rm *RoomManager) IsMember(c *Client, roomId string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	_, ok := rm.rooms[roomId][c]
	return ok
}

func (rm *RoomManager) NumMembers(roomId string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.rooms[roomId])
}
