package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedJSON = errors.New("failed to parse model JSON")

// ParseJSONObject decodes model output into an object. Markdown code fences
// and prose around the outermost braces are tolerated.
func ParseJSONObject(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no object found", ErrMalformedJSON)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: null object", ErrMalformedJSON)
	}
	return out, nil
}

type operationKey struct{}

// WithOperation labels model calls made with ctx for logs and metrics.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return ""
}
