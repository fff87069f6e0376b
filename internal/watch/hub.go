package watch

import (
	"sync"

	"github.com/ampio/canresolve/internal/logging"
	"github.com/ampio/canresolve/internal/metrics"
)

// BackpressurePolicy mirrors internal/hub's: a slow watch client either has
// events dropped or is disconnected, never allowed to stall a broadcast.
type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Client is one attached watch subscriber's outbound event queue.
type Client struct {
	Out       chan Event
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans resolution events out to every attached client, exactly like
// internal/hub.Hub fans CAN frames out to TCP clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates an empty Hub.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(n)
}

// Remove unregisters a client; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	if existed {
		metrics.SetHubClients(cur)
		logging.L().Info("watch_client_disconnected")
	}
}

// Broadcast pushes ev to every attached client, honoring the backpressure policy.
func (h *Hub) Broadcast(ev Event) {
	clients := h.Snapshot()
	for _, c := range clients {
		select {
		case c.Out <- ev:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close()
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of attached clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
