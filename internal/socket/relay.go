package socket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baiweichihu/26b-website-sub001/internal/db"
	"go.uber.org/zap"
)

// RelayChannel is the Redis channel shared by all API instances.
const RelayChannel = "class26b:realtime"

type relayEnvelope struct {
	Topic   string                 `json:"topic"`
	Type    MessageType            `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RedisRelay fans hints out across instances over Redis pub/sub. Each
// instance runs one relay that feeds its own hub.
type RedisRelay struct {
	redis   *db.RedisDB
	hub     *Hub
	channel string
	ready   chan struct{}
	logger  *zap.Logger
}

func NewRedisRelay(redisDB *db.RedisDB, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		redis:   redisDB,
		hub:     hub,
		channel: RelayChannel,
		ready:   make(chan struct{}),
		logger:  logger.Named("relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, topic string, msgType MessageType, payload map[string]interface{}) error {
	data, err := json.Marshal(relayEnvelope{Topic: topic, Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	return r.redis.Publish(ctx, r.channel, data)
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and forwards messages to the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Publish(env.Topic, env.Type, env.Payload)
		}
	}
}
