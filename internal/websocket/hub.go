package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type tokenParser interface {
	ParseUserID(tokenStr string) (uuid.UUID, error)
}

// UpdateSource yields the raw payloads published for a user until ctx is done.
type UpdateSource interface {
	Updates(ctx context.Context, userID uuid.UUID) <-chan []byte
}

// RedisUpdates reads the user_updates:<id> channels written by
// services.RedisPublisher.
type RedisUpdates struct {
	client *redis.Client
}

func NewRedisUpdates(client *redis.Client) *RedisUpdates {
	return &RedisUpdates{client: client}
}

func (u *RedisUpdates) Updates(ctx context.Context, userID uuid.UUID) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		pubsub := u.client.Subscribe(ctx, "user_updates:"+userID.String())
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	source      UpdateSource
	tokens      tokenParser
}

func NewHub(source UpdateSource, tokens tokenParser) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		source:      source,
		tokens:      tokens,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the upgrade request
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.registerConnection(userID, c)

	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) registerConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	if len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.forward(ctx, userID)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":     userID,
		"connections": len(h.connections[userID]),
	}).Info("WebSocket connected")
}

func (h *Hub) unregisterConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	logrus.WithField("user_id", userID).Info("WebSocket disconnected")
}

func (h *Hub) forward(ctx context.Context, userID uuid.UUID) {
	for data := range h.source.Updates(ctx, userID) {
		h.broadcast(userID, data)
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[userID] {
		if err := c.write(data); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Debug("WebSocket write failed")
		}
	}
}

func (h *Hub) connectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
