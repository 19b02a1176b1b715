// Package bus carries realtime messages between processes. Workers publish;
// API servers forward what they receive into their local SSE hub.
package bus

import (
	"context"

	"github.com/optio-learning/optio-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
