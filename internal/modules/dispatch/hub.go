// README: In-memory subscription registry and fan-out for real-time dispatch events.
package dispatch

import (
	"fmt"
	"log"
	"sync"

	"fieldops/internal/types"
)

const defaultSendBuffer = 64

// Message is one server-to-client frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one real-time connection. Its channel is closed by Hub.Disconnect.
type Client struct {
	ID   string
	send chan Message
}

func (c *Client) Messages() <-chan Message {
	return c.send
}

func TechnicianRoom(id types.ID) string { return "technician:" + string(id) }
func TenantRoom(id types.ID) string     { return "tenant:" + string(id) }

type set map[string]struct{}

// Hub guards every subscription map with one mutex. Deliveries happen under the same
// lock so a client never receives an event after it unsubscribed.
type Hub struct {
	mu         sync.Mutex
	bufferSize int

	clients     map[string]*Client
	technicians map[types.ID]string              // technician -> conn, last writer wins
	owns        map[string]types.ID              // conn -> technician it registered
	watchers    map[types.ID]set                 // job -> conns
	tracking    map[string]map[types.ID]struct{} // conn -> jobs
	rooms       map[string]set                   // room -> conns
	memberships map[string]set                   // conn -> rooms
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	return &Hub{
		bufferSize:  bufferSize,
		clients:     map[string]*Client{},
		technicians: map[types.ID]string{},
		owns:        map[string]types.ID{},
		watchers:    map[types.ID]set{},
		tracking:    map[string]map[types.ID]struct{}{},
		rooms:       map[string]set{},
		memberships: map[string]set{},
	}
}

// Connect registers a connection. Reusing a live connID replaces the old client.
func (h *Hub) Connect(connID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; ok {
		h.disconnectLocked(connID)
	}
	c := &Client{ID: connID, send: make(chan Message, h.bufferSize)}
	h.clients[connID] = c
	return c
}

// RegisterTechnician binds technicianID to connID and joins the technician and tenant rooms.
func (h *Hub) RegisterTechnician(connID string, technicianID, tenantID types.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return fmt.Errorf("connection %s: %w", connID, types.ErrNotFound)
	}
	if prev, ok := h.technicians[technicianID]; ok && prev != connID {
		delete(h.owns, prev)
	}
	h.technicians[technicianID] = connID
	h.owns[connID] = technicianID
	h.joinLocked(connID, TechnicianRoom(technicianID))
	h.joinLocked(connID, TenantRoom(tenantID))
	return nil
}

// Join adds connID to an arbitrary room, e.g. a dispatcher joining its tenant room.
func (h *Hub) Join(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return fmt.Errorf("connection %s: %w", connID, types.ErrNotFound)
	}
	h.joinLocked(connID, room)
	return nil
}

func (h *Hub) TrackJob(connID string, jobID types.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return fmt.Errorf("connection %s: %w", connID, types.ErrNotFound)
	}
	if h.watchers[jobID] == nil {
		h.watchers[jobID] = set{}
	}
	h.watchers[jobID][connID] = struct{}{}
	if h.tracking[connID] == nil {
		h.tracking[connID] = map[types.ID]struct{}{}
	}
	h.tracking[connID][jobID] = struct{}{}
	return nil
}

func (h *Hub) UntrackJob(connID string, jobID types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.untrackLocked(connID, jobID)
}

// Disconnect drops every subscription of connID and closes its channel. Safe to repeat.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(connID)
}

// TechnicianConn returns the connection currently registered for technicianID.
func (h *Hub) TechnicianConn(technicianID types.ID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.technicians[technicianID]
	return c, ok
}

// ToJob pushes m to every watcher of jobID and returns how many accepted it.
func (h *Hub) ToJob(jobID types.ID, m Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fanOutLocked(h.watchers[jobID], m)
}

// ToRoom pushes m to every member of room and returns how many accepted it.
func (h *Hub) ToRoom(room string, m Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fanOutLocked(h.rooms[room], m)
}

func (h *Hub) fanOutLocked(conns set, m Message) int {
	n := 0
	for connID := range conns {
		c, ok := h.clients[connID]
		if !ok {
			continue
		}
		select {
		case c.send <- m:
			n++
		default:
			log.Printf("dispatch hub: dropping %s for conn=%s: send buffer full", m.Event, connID)
		}
	}
	return n
}

func (h *Hub) joinLocked(connID, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = set{}
	}
	h.rooms[room][connID] = struct{}{}
	if h.memberships[connID] == nil {
		h.memberships[connID] = set{}
	}
	h.memberships[connID][room] = struct{}{}
}

func (h *Hub) untrackLocked(connID string, jobID types.ID) {
	if w := h.watchers[jobID]; w != nil {
		delete(w, connID)
		if len(w) == 0 {
			delete(h.watchers, jobID)
		}
	}
	if t := h.tracking[connID]; t != nil {
		delete(t, jobID)
		if len(t) == 0 {
			delete(h.tracking, connID)
		}
	}
}

func (h *Hub) disconnectLocked(connID string) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)

	if tech, ok := h.owns[connID]; ok {
		if h.technicians[tech] == connID {
			delete(h.technicians, tech)
		}
		delete(h.owns, connID)
	}
	for jobID := range h.tracking[connID] {
		h.untrackLocked(connID, jobID)
	}
	for room := range h.memberships[connID] {
		if r := h.rooms[room]; r != nil {
			delete(r, connID)
			if len(r) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.memberships, connID)
	close(c.send)
}
