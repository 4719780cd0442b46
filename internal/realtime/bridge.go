package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bookline-ai/bookline/pkg/logging"
)

const channelPrefix = "conv:events:"

func channelFor(conversationID uuid.UUID) string {
	return channelPrefix + conversationID.String()
}

// RedisPublisher publishes conversation events to Redis pub/sub. Publishing
// is fire-and-forget with a short timeout so a stalled Redis cannot delay a
// turn; a lost event is acceptable by contract.
type RedisPublisher struct {
	client  *redis.Client
	timeout time.Duration
	logger  *logging.Logger
}

// NewRedisPublisher creates the publishing side of the bridge.
func NewRedisPublisher(client *redis.Client, timeout time.Duration, logger *logging.Logger) *RedisPublisher {
	if client == nil {
		panic("realtime: redis client required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisPublisher{client: client, timeout: timeout, logger: logger}
}

// PublishTyping emits a typing indicator event.
func (p *RedisPublisher) PublishTyping(conversationID uuid.UUID, active bool) {
	p.publish(Event{Type: EventTyping, ConversationID: conversationID, TypingActive: active})
}

// PublishStateChanged emits a state transition event.
func (p *RedisPublisher) PublishStateChanged(conversationID uuid.UUID, state string) {
	p.publish(Event{Type: EventStateChanged, ConversationID: conversationID, State: state})
}

// PublishMessage emits a message_received event.
func (p *RedisPublisher) PublishMessage(conversationID uuid.UUID, msg MessagePayload) {
	p.publish(Event{Type: EventMessageReceived, ConversationID: conversationID, Message: &msg})
}

func (p *RedisPublisher) publish(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("realtime: marshal event", "error", err, "type", evt.Type)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, channelFor(evt.ConversationID), body).Err(); err != nil {
		p.logger.Warn("realtime: publish failed",
			"error", err,
			"conversation_id", evt.ConversationID,
			"type", evt.Type,
		)
	}
}

// Bridge subscribes to the Redis event channels and feeds the local hub, so
// events published by any API instance reach websocket clients connected to
// this one.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	logger *logging.Logger
}

// NewBridge creates the subscribing side of the bridge.
func NewBridge(client *redis.Client, hub *Hub, logger *logging.Logger) *Bridge {
	if client == nil {
		panic("realtime: redis client required")
	}
	if hub == nil {
		panic("realtime: hub required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{client: client, hub: hub, logger: logger}
}

// Run consumes the pattern subscription until ctx ends.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(msg.Channel, msg.Payload)
		}
	}
}

func (b *Bridge) dispatch(channel, payload string) {
	idPart := strings.TrimPrefix(channel, channelPrefix)
	conversationID, err := uuid.Parse(idPart)
	if err != nil {
		b.logger.Warn("realtime: bad channel name", "channel", channel)
		return
	}

	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn("realtime: bad event payload", "error", err, "channel", channel)
		return
	}
	evt.ConversationID = conversationID
	b.hub.Broadcast(evt)
}
