package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"oncare-chatbot-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// Hub tracks open chat sessions on this instance and fans notices out to them. Notices are also
// relayed through Redis so sessions on every instance receive them.
type Hub struct {
	// Registered sessions: SessionID -> Client
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// origin tags relayed messages so an instance skips its own
	origin string

	logger logger.ILogger
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]*Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.clients = make(map[uuid.UUID]*Client)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Hub", "Chat session opened", map[string]interface{}{"session_id": client.SessionID, "sessions": count})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.SessionID]; ok {
				delete(h.clients, client.SessionID)
				close(client.Send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Hub", "Chat session closed", map[string]interface{}{"session_id": client.SessionID, "sessions": count})
		}
	}
}

// Register adds a session. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a session and closes its Send channel. It reports false once the hub has
// stopped, in which case Send is left open for the caller.
func (h *Hub) Unregister(client *Client) bool {
	select {
	case h.unregister <- client:
		return true
	case <-h.done:
		return false
	}
}

// SessionCount returns the number of sessions open on this instance.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a notice frame to every session, locally and through Redis.
func (h *Hub) Broadcast(ctx context.Context, frameType string) {
	data, _ := json.Marshal(map[string]interface{}{"type": frameType})
	h.deliverLocal(data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.origin, Message: data})
		if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to relay notice", map[string]interface{}{"error": err.Error()})
		}
	}
}

// deliverLocal never blocks: a session with a full buffer misses the notice.
func (h *Hub) deliverLocal(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Session send buffer full, dropping notice", map[string]interface{}{"session_id": client.SessionID})
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Invalid cluster message", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.origin {
			continue
		}
		h.deliverLocal(payload.Message)
	}
}
