package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultGeminiModel = "gemini-1.5-flash"

// geminiClient implements Client on top of the Gemini API.
type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gemini client: %w", err)
	}
	return &geminiClient{client: client, model: model}, nil
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Media != nil {
		parts = append(parts, &genai.Blob{MIMEType: req.Media.MIMEType, Data: req.Media.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// classifyGeminiError maps quota failures to ErrRateLimit and marks client
// errors as not retryable. REST failures carry a *googleapi.Error, gRPC
// failures a status code.
func classifyGeminiError(err error) error {
	switch code := geminiStatus(err); code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("gemini: %w: %w", ErrRateLimit, err)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return &RetryableError{Err: fmt.Errorf("gemini: %w", err), Retryable: false}
	default:
		return fmt.Errorf("gemini: %w", err)
	}
}

// geminiStatus returns the HTTP status equivalent of err, or 0 when err
// carries none.
func geminiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	st, ok := status.FromError(err)
	if !ok {
		return 0
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	default:
		return 0
	}
}

func (c *geminiClient) Close() error {
	return c.client.Close()
}
