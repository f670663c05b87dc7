package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewClient creates a client for cfg.Provider wrapped with rate limiting,
// retries and a per-call timeout.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	var (
		base Client
		err  error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		base, err = newGeminiClient(ctx, cfg)
	case "openai":
		base, err = newOpenAIClient(cfg)
	case "none", "":
		return disabledClient{}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return newGuardedClient(base, cfg), nil
}

// guardedClient applies the call budget around a provider.
type guardedClient struct {
	inner   Client
	limiter *rateLimiter
	retry   RetryOptions
	timeout time.Duration
}

func newGuardedClient(inner Client, cfg Config) *guardedClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &guardedClient{
		inner:   inner,
		limiter: newRateLimiter(cfg.RequestsPerMinute),
		retry:   RetryOptions{MaxAttempts: cfg.MaxAttempts},
		timeout: timeout,
	}
}

func (g *guardedClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out string
	err := WithRetry(ctx, func() error {
		if err := g.limiter.wait(ctx); err != nil {
			return &RetryableError{Err: err, Retryable: false}
		}
		text, err := g.inner.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	}, g.retry)
	return out, err
}

func (g *guardedClient) Close() error {
	g.limiter.Close()
	return g.inner.Close()
}

// disabledClient fails every call; used when no provider is configured.
type disabledClient struct{}

func (disabledClient) Generate(context.Context, Request) (string, error) {
	return "", ErrDisabled
}

func (disabledClient) Close() error { return nil }
