// Package llm talks to generative model providers. Callers send a prompt
// with an optional media attachment and get the raw text answer back.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimit indicates that the provider rejected the call for quota reasons.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrEmptyResponse is returned when the provider answers without text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrDisabled is returned by the client configured with provider "none".
	ErrDisabled = errors.New("generative model is disabled")
)

// Client defines the interface for LLM providers.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// Request is a single prompt. JSON asks the provider for a JSON-only answer
// when it supports that.
type Request struct {
	System string
	Prompt string
	Media  *Media
	JSON   bool
}

// Media is an inline attachment such as a receipt image or PDF.
type Media struct {
	MIMEType string
	Data     []byte
}

// Config selects and tunes a provider.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerMinute int
}
