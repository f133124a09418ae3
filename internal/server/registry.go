package server

import (
	"log"
	"sync"
)

// ConnectionRegistry is the authoritative mapping from a user identity to
// its live transports. A user is present the moment their transport
// registers, before joining any room.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	log         *log.Logger
	byUser      map[string]map[*Client]struct{}
	byTransport map[string]*Client
}

func NewConnectionRegistry(l *log.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		log:         l,
		byUser:      make(map[string]map[*Client]struct{}),
		byTransport: make(map[string]*Client),
	}
}

func (r *ConnectionRegistry) Register(c *Client) error {
	if c.user.Id == "" {
		return ErrConnectionRejected
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byTransport[c.transportId] = c
	if r.byUser[c.user.Id] == nil {
		r.byUser[c.user.Id] = make(map[*Client]struct{})
	}
	r.byUser[c.user.Id][c] = struct{}{}

	r.log.Printf("registered transport %s for user %q", c.transportId, c.user.Id)
	return nil
}

// Unregister removes the transport's mapping. Unregistering a transport
// that was never registered is a no-op, not an error.
func (r *ConnectionRegistry) Unregister(transportId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byTransport[transportId]
	if !ok {
		return false
	}

	delete(r.byTransport, transportId)
	if clients, ok := r.byUser[c.user.Id]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(r.byUser, c.user.Id)
		}
	}

	r.log.Printf("unregistered transport %s for user %q", transportId, c.user.Id)
	return true
}

// Resolve returns every live transport for the user, possibly none.
func (r *ConnectionRegistry) Resolve(userId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for c := range r.byUser[userId] {
		clients = append(clients, c)
	}

	return clients
}

// Clients returns a snapshot of every registered transport.
func (r *ConnectionRegistry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.byTransport))
	for _, c := range r.byTransport {
		clients = append(clients, c)
	}

	return clients
}

func (r *ConnectionRegistry) NumConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byTransport)
}
