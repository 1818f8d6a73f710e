package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"limelight/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user across all rooms.
	maxConnsPerUser = 12
	// Max total connections.
	maxTotalConns = 10000
)

var (
	errServerConnLimit = errors.New("server connection limit reached")
	errUserConnLimit   = errors.New("user connection limit reached")
)

// roomChannel carries one room's subscriber set. Its mutex serializes
// broadcasts so every subscriber observes the same per-room event order.
type roomChannel struct {
	mu   sync.Mutex
	subs map[*Client]struct{}
	seq  uint64
}

// Hub is the per-room event fan-out bus. It is room-centric: a client
// subscribes to exactly one room channel for its lifetime.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uint]*roomChannel
	admin      map[*Client]struct{}
	perUser    map[uint]int
	totalConns int
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "room hub" }

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[uint]*roomChannel),
		admin:   make(map[*Client]struct{}),
		perUser: make(map[uint]int),
	}
}

// Register creates a Client subscribed to the given room. Returns an error if
// connection limits are exceeded.
func (h *Hub) Register(userID, roomID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errServerConnLimit
	}
	if h.perUser[userID] >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errUserConnLimit
	}

	client := NewClient(h, conn, userID, roomID)

	ch := h.rooms[roomID]
	if ch == nil {
		ch = &roomChannel{subs: make(map[*Client]struct{})}
		h.rooms[roomID] = ch
	}

	h.perUser[userID]++
	h.totalConns++
	h.mu.Unlock()

	ch.mu.Lock()
	ch.subs[client] = struct{}{}
	ch.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// RegisterAdmin creates a Client subscribed to the admin channel.
func (h *Hub) RegisterAdmin(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errServerConnLimit
	}
	client := NewClient(h, conn, userID, 0)
	h.admin[client] = struct{}{}
	h.perUser[userID]++
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes a client from its channel. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if _, ok := h.admin[client]; ok {
		delete(h.admin, client)
		removed = true
	}
	ch := h.rooms[client.RoomID]
	h.mu.Unlock()

	if ch != nil {
		ch.mu.Lock()
		if _, ok := ch.subs[client]; ok {
			delete(ch.subs, client)
			removed = true
		}
		empty := len(ch.subs) == 0
		ch.mu.Unlock()

		if empty {
			h.mu.Lock()
			if cur := h.rooms[client.RoomID]; cur == ch {
				cur.mu.Lock()
				if len(cur.subs) == 0 {
					delete(h.rooms, client.RoomID)
				}
				cur.mu.Unlock()
			}
			h.mu.Unlock()
		}
	}

	if removed {
		h.mu.Lock()
		h.totalConns--
		if h.perUser[client.UserID] > 1 {
			h.perUser[client.UserID]--
		} else {
			delete(h.perUser, client.UserID)
		}
		h.mu.Unlock()
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// dropConn decrements accounting for a client already removed from its channel.
func (h *Hub) dropConn(client *Client) {
	h.mu.Lock()
	h.totalConns--
	if h.perUser[client.UserID] > 1 {
		h.perUser[client.UserID]--
	} else {
		delete(h.perUser, client.UserID)
	}
	h.mu.Unlock()
	observability.WebSocketConnectionsTotal.Dec()
}

// Publish broadcasts an event to every subscriber of a room, in publish order.
// Delivery is at-most-once per subscriber; slow consumers drop rather than
// stall the rest.
func (h *Hub) Publish(roomID uint, evtType EventType, payload interface{}) {
	h.mu.RLock()
	ch := h.rooms[roomID]
	h.mu.RUnlock()

	observability.EventsBroadcast.WithLabelValues(string(evtType)).Inc()

	if ch == nil {
		// No subscribers; nothing to deliver. Disconnected subscribers
		// reconcile by re-fetching state on reconnect.
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.seq++
	evt := Event{
		Type:    evtType,
		RoomID:  roomID,
		Seq:     ch.seq,
		Payload: payload,
		TS:      time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("failed to marshal %s event for room %d: %v", evtType, roomID, err)
		return
	}

	for client := range ch.subs {
		client.TrySend(data)
	}
}

// PublishAdmin broadcasts an event to the admin channel only.
func (h *Hub) PublishAdmin(evtType EventType, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	observability.EventsBroadcast.WithLabelValues(string(evtType)).Inc()

	evt := Event{
		Type:    evtType,
		Payload: payload,
		TS:      time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("failed to marshal %s admin event: %v", evtType, err)
		return
	}
	for client := range h.admin {
		client.TrySend(data)
	}
}

// CloseRoom disconnects every subscriber of a room after its terminal event
// was published. Later subscribe attempts are rejected at the handler against
// the room's stored state.
func (h *Hub) CloseRoom(roomID uint) {
	h.mu.Lock()
	ch := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	if ch == nil {
		return
	}

	ch.mu.Lock()
	subs := make([]*Client, 0, len(ch.subs))
	for client := range ch.subs {
		subs = append(subs, client)
	}
	ch.subs = make(map[*Client]struct{})
	ch.mu.Unlock()

	for _, client := range subs {
		if client.Conn != nil {
			_ = client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room ended"))
			_ = client.Conn.Close()
		}
		h.dropConn(client)
	}
}

// SubscriberCount returns the number of active connections for a room.
func (h *Hub) SubscriberCount(roomID uint) int {
	h.mu.RLock()
	ch := h.rooms[roomID]
	h.mu.RUnlock()
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	var clients []*Client
	for _, ch := range h.rooms {
		ch.mu.Lock()
		for client := range ch.subs {
			clients = append(clients, client)
		}
		ch.subs = make(map[*Client]struct{})
		ch.mu.Unlock()
	}
	for client := range h.admin {
		clients = append(clients, client)
	}
	h.rooms = make(map[uint]*roomChannel)
	h.admin = make(map[*Client]struct{})
	h.perUser = make(map[uint]int)
	h.totalConns = 0
	h.mu.Unlock()

	for _, client := range clients {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			log.Printf("failed to write close message for user %d: %v", client.UserID, err)
		}
		if err := client.Conn.Close(); err != nil {
			log.Printf("failed to close websocket for user %d: %v", client.UserID, err)
		}
	}

	return nil
}
