package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-library-agent/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// MessageHandler receives raw inbound frames from a user's clients.
type MessageHandler func(userID uuid.UUID, data []byte)

// Envelope is the shape of every frame pushed to clients.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Hub struct {
	// UserID -> clients (one per open viewer window)
	clients map[uuid.UUID][]*Client
	// UserID -> client that sent the latest inbound frame
	active map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	handlersMu sync.RWMutex
	handlers   []MessageHandler

	// Redis connection for cross-instance fan-out; optional
	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		active:     make(map[uuid.UUID]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

// OnMessage registers a handler for inbound client frames.
func (h *Hub) OnMessage(fn MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers = append(h.handlers, fn)
}

// receive marks the client as the user's active one and dispatches the frame.
func (h *Hub) receive(client *Client, data []byte) {
	h.mu.Lock()
	for _, c := range h.clients[client.UserID] {
		if c == client {
			h.active[client.UserID] = client
			break
		}
	}
	h.mu.Unlock()
	h.dispatch(client.UserID, data)
}

func (h *Hub) dispatch(userID uuid.UUID, data []byte) {
	h.handlersMu.RLock()
	handlers := append([]MessageHandler(nil), h.handlers...)
	h.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(userID, data)
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if h.active[client.UserID] == client {
		delete(h.active, client.UserID)
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

// Connected reports whether the user has a client on this instance.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendLocal writes a frame to the user's clients on this instance only.
// Returns false when no local client accepted it.
func (h *Hub) SendLocal(userID uuid.UUID, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for _, client := range h.clients[userID] {
		select {
		case client.Send <- data:
			delivered = true
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping message", map[string]interface{}{"user_id": userID})
		}
	}
	return delivered
}

// SendOne writes a frame to exactly one of the user's local clients: the one
// that last sent a frame, else the most recently registered. Returns false
// when no client accepted it.
func (h *Hub) SendOne(userID uuid.UUID, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[userID]
	candidates := make([]*Client, 0, len(clients))
	if c, ok := h.active[userID]; ok {
		candidates = append(candidates, c)
	}
	for i := len(clients) - 1; i >= 0; i-- {
		if clients[i] != h.active[userID] {
			candidates = append(candidates, clients[i])
		}
	}
	for _, client := range candidates {
		select {
		case client.Send <- data:
			return true
		default:
			h.logger.Warn("Hub", "Client Send buffer full, trying next client", map[string]interface{}{"user_id": userID})
		}
	}
	return false
}

// Send pushes a typed frame to every client of the user, here and on other
// instances through Redis.
func (h *Hub) Send(ctx context.Context, userID uuid.UUID, msgType string, payload interface{}) error {
	data, err := json.Marshal(Envelope{Type: msgType, Data: payload})
	if err != nil {
		return err
	}

	h.SendLocal(userID, data)

	if h.rdb != nil {
		out, _ := json.Marshal(map[string]interface{}{
			"origin":         instanceID,
			"target_user_id": userID.String(),
			"message":        json.RawMessage(data),
		})
		if err := h.rdb.Publish(ctx, clusterChannel, out).Err(); err != nil {
			h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// instanceID keeps an instance from re-delivering its own Redis messages.
var instanceID = uuid.NewString()

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload struct {
			Origin       string          `json:"origin"`
			TargetUserID string          `json:"target_user_id"`
			Message      json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == instanceID {
			continue
		}
		uid, err := uuid.Parse(payload.TargetUserID)
		if err != nil {
			continue
		}
		h.SendLocal(uid, payload.Message)
	}
}
