package socket

import (
	"context"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"go.uber.org/zap"
)

// Publisher delivers a topic message to every instance's hub.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgType MessageType, payload map[string]interface{}) error
}

// Broadcaster provides high-level methods for broadcasting change hints.
// With a relay set, messages go through it so every instance sees them;
// otherwise they go straight to the local hub.
type Broadcaster struct {
	hub    *Hub
	relay  Publisher
	logger *zap.Logger
}

func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, logger: logger.Named("broadcaster")}
}

func (b *Broadcaster) SetRelay(relay Publisher) {
	b.relay = relay
}

func (b *Broadcaster) publish(topic string, msgType MessageType, payload map[string]interface{}) {
	if b.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := b.relay.Publish(ctx, topic, msgType, payload)
		if err == nil {
			return
		}
		b.logger.Warn("relay publish failed, delivering locally", zap.String("topic", topic), zap.Error(err))
	}
	b.hub.Publish(topic, msgType, payload)
}

// NotificationChanged nudges the recipient's notification topic.
func (b *Broadcaster) NotificationChanged(recipientID string, payload map[string]interface{}) {
	b.publish(types.NotificationTopic(recipientID), MessageNotificationChanged, payload)
}

// AccessRequestChanged nudges the requester's topic and the staff review topic.
func (b *Broadcaster) AccessRequestChanged(requesterID string, payload map[string]interface{}) {
	b.publish(types.AccessRequestTopic(requesterID), MessageAccessRequestChanged, payload)
	b.publish(types.TopicAllAccessRequests, MessageAccessRequestChanged, payload)
}
