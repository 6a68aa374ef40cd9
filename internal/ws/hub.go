package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trade-market/internal/models"
	"trade-market/internal/observability"
)

const (
	wsRoutingKey = "ws_events.conversations"
	writeWait    = 10 * time.Second
	sendBuffer   = 32
)

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client owns one connection. Only its write pump writes to conn.
type client struct {
	conn     Conn
	info     ConnInfo
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// enqueue never blocks; false means the client is not keeping up.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Hub maintains the live connections of each conversation.
type Hub struct {
	rooms     map[int64]map[Conn]*client
	publisher Publisher
	log       *slog.Logger
	mu        sync.RWMutex
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher Publisher, log *slog.Logger) *Hub {
	return &Hub{
		rooms:     make(map[int64]map[Conn]*client),
		publisher: publisher,
		log:       log,
	}
}

// AddClient registers a connection to a conversation room and starts its write pump.
func (h *Hub) AddClient(conversationID int64, conn Conn, info ConnInfo) {
	c := &client{conn: conn, info: info, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[Conn]*client)
	}
	h.rooms[conversationID][conn] = c
	h.mu.Unlock()

	observability.IncWSActive()
	go h.writePump(conversationID, c)
}

// RemoveClient drops a connection, stops its write pump and reports whether
// it was still registered. Only the caller that gets true reports the loss.
func (h *Hub) RemoveClient(conversationID int64, conn Conn) bool {
	h.mu.Lock()
	conns := h.rooms[conversationID]
	c, found := conns[conn]
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.rooms, conversationID)
	}
	h.mu.Unlock()

	if !found {
		return false
	}
	c.stop()
	observability.DecWSActive()
	return true
}

// ClientCount reports the live connections of a conversation.
func (h *Hub) ClientCount(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastMessage queues msg for every client of the conversation and returns
// without waiting for the writes. A client whose queue is full is dropped.
func (h *Hub) BroadcastMessage(conversationID int64, msg models.MessageView) {
	event := models.ConversationEvent{Type: "message", Message: &msg}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("websocket event encode failed", "conversation_id", conversationID, "error", err)
		return
	}

	for _, c := range h.snapshot(conversationID) {
		if !c.enqueue(payload) {
			h.log.Warn("websocket client too slow", "conversation_id", conversationID, "conn_id", c.info.ConnID)
			h.dropClient(conversationID, c, "send buffer full")
		}
	}
}

func (h *Hub) writePump(conversationID int64, c *client) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = c.conn.WriteMessage(websocket.TextMessage, payload)
			}
			if err != nil {
				h.log.Warn("websocket write error", "conversation_id", conversationID, "conn_id", c.info.ConnID, "error", err)
				h.dropClient(conversationID, c, err.Error())
				return
			}
			observability.IncWSEvent("ws_message")
		}
	}
}

// dropClient closes a failing connection. ws_error is published once, by
// whoever removes the client first.
func (h *Hub) dropClient(conversationID int64, c *client, reason string) {
	if h.RemoveClient(conversationID, c.conn) {
		h.publishWSEvent(context.Background(), "ws_error", conversationID, c.info, reason)
	}
	_ = c.conn.Close()
}

func (h *Hub) snapshot(conversationID int64) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) publishWSEvent(ctx context.Context, event string, conversationID int64, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	if h.publisher == nil {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "conversation",
			"resource_id": conversationID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	envelope := observability.NewEnvelope(ctx, "ws_events", event, payload)
	envelope.RequestID = info.RequestID
	envelope.TraceID = info.TraceID
	if err := h.publisher.Publish(ctx, wsRoutingKey, envelope); err != nil {
		h.log.Warn("ws event publish failed", "event", event, "error", err)
	}
}
