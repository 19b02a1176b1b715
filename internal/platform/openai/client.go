package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/httpx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/platform/promptstyle"
)

// Client is the generation-model API used by the curriculum services.
type Client interface {
	// GenerateJSON asks for a single JSON object and returns it decoded.
	// Output that is not a JSON object yields an error wrapping ErrMalformedJSON.
	GenerateJSON(ctx context.Context, system, user string) (map[string]any, error)
	GenerateText(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float32
}

type client struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	api        *goopenai.Client
	model      string
	maxRetries int
	temp       float32
}

func NewClient(log *logger.Logger, metrics *observability.Metrics, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = goopenai.GPT4oMini
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &client{
		log:        log.With("service", "OpenAIClient", "model", model),
		metrics:    metrics,
		api:        goopenai.NewClientWithConfig(apiCfg),
		model:      model,
		maxRetries: retries,
		temp:       cfg.Temperature,
	}, nil
}

func (c *client) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	text, err := c.complete(ctx, promptstyle.ApplySystem(system, "json"), user, true)
	if err != nil {
		return nil, err
	}
	obj, err := ParseJSONObject(text)
	if err != nil {
		c.log.Warn("model returned non-object output", "operation", OperationFrom(ctx), "preview", preview(text, 240))
		return nil, err
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, promptstyle.ApplySystem(system, "text"), user, false)
}

func (c *client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	op := OperationFrom(ctx)
	start := time.Now()
	base := time.Second
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			c.metrics.ObserveLLM(c.model, op, "ok", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty choices", ErrMalformedJSON)
			}
			return resp.Choices[0].Message.Content, nil
		}
		err = classify(err)
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			c.metrics.ObserveLLM(c.model, op, statusLabel(err), time.Since(start), 0, 0)
			return "", err
		}
		sleepFor := httpx.Jitter(httpx.Backoff(attempt+1, base, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"operation", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return "", err
		}
	}
}

// StatusError carries the upstream HTTP status so httpx can classify it.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string       { return fmt.Sprintf("openai status %d: %v", e.Status, e.Err) }
func (e *StatusError) Unwrap() error       { return e.Err }
func (e *StatusError) HTTPStatusCode() int { return e.Status }

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Status: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}

func statusLabel(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("%d", se.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
