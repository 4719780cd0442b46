package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/pkg/logging"
)

func TestChannelFor(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "conv:events:"+id.String(), channelFor(id))
}

func TestBridgeDispatch(t *testing.T) {
	hub := NewHub(logging.Default())
	b := &Bridge{client: nil, hub: hub, logger: logging.Default()}
	convID := uuid.New()
	sub := hub.Subscribe(convID)
	defer hub.Unsubscribe(sub)

	b.dispatch(channelFor(convID), `{"type":"typing","typing_active":true}`)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventTyping, evt.Type)
		assert.True(t, evt.TypingActive)
		assert.Equal(t, convID, evt.ConversationID, "the channel name is authoritative for the topic")
	case <-time.After(time.Second):
		t.Fatal("dispatch did not reach the hub")
	}
}

func TestBridgeDispatchIgnoresGarbage(t *testing.T) {
	hub := NewHub(logging.Default())
	b := &Bridge{hub: hub, logger: logging.Default()}
	convID := uuid.New()
	sub := hub.Subscribe(convID)
	defer hub.Unsubscribe(sub)

	b.dispatch("conv:events:not-a-uuid", `{"type":"typing"}`)
	b.dispatch(channelFor(convID), `{not json`)

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event %v", evt)
	default:
	}
}

func TestPublisherToBridgeRoundtrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hub := NewHub(logging.Default())
	bridge := NewBridge(client, hub, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	convID := uuid.New()
	sub := hub.Subscribe(convID)
	defer hub.Unsubscribe(sub)

	// PSubscribe registration is asynchronous; retry the publish until the
	// bridge is listening.
	publisher := NewRedisPublisher(client, time.Second, logging.Default())
	deadline := time.After(5 * time.Second)
	for {
		publisher.PublishStateChanged(convID, "confirming_details")
		select {
		case evt := <-sub.Events():
			require.Equal(t, EventStateChanged, evt.Type)
			assert.Equal(t, "confirming_details", evt.State)
			assert.Equal(t, convID, evt.ConversationID)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never crossed the bridge")
		}
	}
}
