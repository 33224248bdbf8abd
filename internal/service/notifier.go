package service

import (
	"context"
	"encoding/json"
	"ethics_gate_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notification is a side-effect intent emitted by a transition. Delivery to
// the human (chat, mail) belongs to external collaborators subscribed to the
// channel; a failed publish never fails the transition that produced it.
type Notification struct {
	Type    string    `json:"type"`
	UserID  string    `json:"userId"`
	OrgID   string    `json:"orgId"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, n *Notification)
}

// RedisNotifier publishes intents on a redis pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) Publish(ctx context.Context, msg *Notification) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("notification marshal failed", zap.Error(err))
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		logger.Log.Warn("notification publish failed",
			zap.String("type", msg.Type),
			zap.String("userId", msg.UserID),
			zap.Error(err))
	}
}

// NopNotifier discards intents, for tests.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, n *Notification) {}
