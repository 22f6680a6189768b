package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"groqchat/internal/models"
)

// ErrMalformedResponse indicates the upstream answered with a body that could not be decoded.
var ErrMalformedResponse = errors.New("malformed upstream response")

// ErrStreamingUnsupported indicates the upstream did not answer a streaming request with an event stream.
var ErrStreamingUnsupported = errors.New("upstream did not return an event stream")

// Upstream is the behaviour the relay needs from a completion API.
type Upstream interface {
	Name() string
	ListModels(ctx context.Context) ([]string, error)
	Complete(ctx context.Context, req models.ChatRequest) (json.RawMessage, error)
	Stream(ctx context.Context, req models.ChatRequest) (<-chan models.StreamEvent, error)
}

// APIError is an HTTP failure reported by the upstream.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("upstream error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Message)
}
