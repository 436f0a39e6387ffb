package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/models"
)

// Publisher pushes live updates to a user's websocket connections.
type Publisher interface {
	PublishUpdate(ctx context.Context, userID string, msg models.WSMessage)
}

// RedisPublisher publishes on the per-user channel the websocket hub
// subscribes to.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (p *RedisPublisher) PublishUpdate(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).WithField("type", msg.Type).Error("Failed to encode update")
		return
	}
	if err := p.redis.Publish(ctx, "user_updates:"+userID, string(data)).Err(); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "type": msg.Type}).Warn("Failed to publish update")
	}
}
