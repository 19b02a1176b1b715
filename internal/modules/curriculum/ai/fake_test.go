package ai

import (
	"context"
	"sync"

	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type fakeCall struct {
	system string
	user   string
}

// fakeLLM answers GenerateJSON from respond, or from replies in order.
type fakeLLM struct {
	mu      sync.Mutex
	calls   []fakeCall
	replies []fakeReply
	respond func(user string) (map[string]any, error)
}

type fakeReply struct {
	out map[string]any
	err error
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{system: system, user: user})
	n := len(f.calls)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(user)
	}
	if len(f.replies) == 0 {
		return map[string]any{}, nil
	}
	if n > len(f.replies) {
		n = len(f.replies)
	}
	r := f.replies[n-1]
	return r.out, r.err
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(llm *fakeLLM, cfg Config) *Service {
	return NewService(logger.NewNop(), llm, nil, cfg)
}

// Shorthands for model output literals.
type obj = map[string]any
type list = []any
