package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Delivery is one outbound frame addressed to a room. MessageID is zero
// for frames that are not chat messages.
type Delivery struct {
	RoomID    string          `json:"roomId"`
	MessageID uint            `json:"messageId"`
	Frame     json.RawMessage `json:"frame"`
}

// Relay fans deliveries out to every gateway instance, this one included.
type Relay interface {
	Publish(ctx context.Context, delivery Delivery) error
}

// Hub maintains the set of active clients and their room subscriptions
type Hub struct {
	mu sync.RWMutex

	// Registered clients by connection ID
	clients map[string]*Client

	// Room members and, per member, the last message ID it was sent in
	// its history replay.
	rooms map[string]map[*Client]uint

	// Per-room locks, present only while held or awaited.
	locksMu   sync.Mutex
	roomLocks map[string]*roomLock

	relay  Relay
	logger *slog.Logger
}

// NewHub creates a new hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[*Client]uint),
		roomLocks: make(map[string]*roomLock),
		logger:    logger,
	}
}

// UseRelay routes broadcasts through relay instead of delivering locally.
// It must be called before the hub serves connections.
func (h *Hub) UseRelay(relay Relay) {
	h.relay = relay
}

type roomLock struct {
	mu   sync.Mutex
	refs int // guarded by Hub.locksMu
}

// lockRoom serializes history replay and message fan-out for a room. The
// returned func unlocks it; the entry is dropped once nobody holds or
// waits for it.
func (h *Hub) lockRoom(roomID string) func() {
	h.locksMu.Lock()
	l, ok := h.roomLocks[roomID]
	if !ok {
		l = &roomLock{}
		h.roomLocks[roomID] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.roomLocks, roomID)
		}
		h.locksMu.Unlock()
	}
}

func (h *Hub) roomLockCount() int {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	return len(h.roomLocks)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes c from the hub and every room it joined, then closes
// its send channel. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		for roomID := range c.rooms {
			h.removeMember(roomID, c)
		}
		c.rooms = make(map[string]struct{})
	}
	h.mu.Unlock()

	c.closeSend()
}

// join subscribes c to roomID. Live messages with an ID at or below
// watermark are skipped since the client already has them.
func (h *Hub) join(c *Client, roomID string, watermark uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]uint)
		h.rooms[roomID] = members
	}
	members[c] = watermark
	c.rooms[roomID] = struct{}{}
}

func (h *Hub) leave(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeMember(roomID, c)
	delete(c.rooms, roomID)
}

// removeMember must be called with h.mu held.
func (h *Hub) removeMember(roomID string, c *Client) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast sends an event to every member of roomID. Callers that need
// ordering hold the room lock.
func (h *Hub) Broadcast(ctx context.Context, roomID string, messageID uint, eventType string, payload interface{}) error {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	d := Delivery{RoomID: roomID, MessageID: messageID, Frame: frame}

	if h.relay != nil {
		err := h.relay.Publish(ctx, d)
		if err == nil {
			return nil
		}
		h.logger.Error("relay publish failed, delivering locally", "room_id", roomID, "error", err)
	}
	h.Deliver(d)
	return nil
}

// Deliver hands d to the local members of its room and returns how many
// received it. Members whose buffers are full are disconnected.
func (h *Hub) Deliver(d Delivery) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c, watermark := range h.rooms[d.RoomID] {
		if d.MessageID != 0 && d.MessageID <= watermark {
			continue
		}
		if c.trySend(d.Frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow client", "conn_id", c.id, "user_id", c.UserID(), "room_id", d.RoomID)
		h.unregister(c)
	}
	return delivered
}

// enqueue sends a frame to a single client, disconnecting it when its
// buffer is full.
func (h *Hub) enqueue(c *Client, frame []byte) bool {
	if c.trySend(frame) {
		return true
	}
	h.logger.Warn("dropping slow client", "conn_id", c.id, "user_id", c.UserID())
	h.unregister(c)
	return false
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomMembers returns the number of local connections joined to roomID.
func (h *Hub) RoomMembers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Shutdown closes every connection's send channel so its write pump sends
// a close frame and exits.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]uint)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	h.logger.Info("websocket hub closed", "connections", len(clients))
}
