package bus

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

func TestLocalBusForwardsToHub(t *testing.T) {
	hub := realtime.NewSSEHub(logger.NewNop())
	b := NewLocalBus()
	if err := b.StartForwarder(context.Background(), hub.Broadcast); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	channel := realtime.UploadChannel(uuid.New())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	if err := b.Publish(context.Background(), realtime.SSEMessage{Channel: channel, Event: realtime.SSEEventUploadComplete}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-client.Outbound:
		if msg.Event != realtime.SSEEventUploadComplete {
			t.Fatalf("event = %s", msg.Event)
		}
	default:
		t.Fatalf("message not delivered synchronously")
	}

	_ = b.Close()
	if err := b.Publish(context.Background(), realtime.SSEMessage{Channel: channel}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Publish(ctx, realtime.SSEMessage{Channel: channel}); err == nil {
		t.Fatalf("expected error on canceled context")
	}
}
