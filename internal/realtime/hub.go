package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bookline-ai/bookline/pkg/logging"
)

const subscriberBuffer = 16

// Subscriber is one listener on a conversation topic.
type Subscriber struct {
	ConversationID uuid.UUID
	events         chan Event
	once           sync.Once
}

// Events returns the subscriber's event stream.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub tracks subscribers per conversation topic and broadcasts events to
// them. Slow subscribers are skipped, not waited on: the buffer absorbs
// bursts and anything beyond it is dropped (at-most-once delivery).
type Hub struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]map[*Subscriber]struct{}
	logger *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		topics: make(map[uuid.UUID]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener on the conversation topic.
func (h *Hub) Subscribe(conversationID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		ConversationID: conversationID,
		events:         make(chan Event, subscriberBuffer),
	}
	h.mu.Lock()
	subs, ok := h.topics[conversationID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[conversationID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the listener and closes its stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if subs, ok := h.topics[sub.ConversationID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.ConversationID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Broadcast delivers the event to every current subscriber of the topic
// without blocking.
func (h *Hub) Broadcast(evt Event) {
	h.mu.RLock()
	subs := h.topics[evt.ConversationID]
	targets := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- evt:
		default:
			h.logger.Debug("realtime subscriber buffer full, dropping event",
				"conversation_id", evt.ConversationID,
				"type", evt.Type,
			)
		}
	}
}

// Close drops every topic and closes all subscriber streams. Connected
// clients observe a closed channel and disconnect.
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[uuid.UUID]map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.close()
		}
	}
}

// SubscriberCount reports the current listener count for a topic.
func (h *Hub) SubscriberCount(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[conversationID])
}
