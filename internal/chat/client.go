package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"groqchat/internal/models"
	"groqchat/internal/sse"
)

// ErrStreamTruncated reports a chat stream that ended without a done event.
var ErrStreamTruncated = errors.New("chat stream ended unexpectedly")

// ErrEmptyTitle reports a title completion that was blank once cleaned.
var ErrEmptyTitle = errors.New("title response was empty")

// RelayError is an error reported by the relay, either as a JSON response
// or as an in-band stream event.
type RelayError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *RelayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("relay stream error (%s): %s", e.Type, e.Message)
}

// UIDefaults are the client defaults published by the relay.
type UIDefaults struct {
	Heading       string  `json:"heading"`
	FallbackModel string  `json:"fallbackModel"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

// Client talks to the relay's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the relay at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Defaults fetches the relay's UI defaults.
func (c *Client) Defaults(ctx context.Context) (UIDefaults, error) {
	var out UIDefaults
	if err := c.getJSON(ctx, "/api/config", &out); err != nil {
		return UIDefaults{}, err
	}
	return out, nil
}

// Models fetches the upstream model ids through the relay.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "/api/models", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

type chatRequest struct {
	Messages    []models.Message `json:"messages"`
	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"topP,omitempty"`
}

// Chat streams a reply for turn, invoking onToken for each chunk in arrival
// order. It returns the upstream finish reason.
func (c *Client) Chat(ctx context.Context, turn Turn, onToken func(string)) (string, error) {
	resp, err := c.post(ctx, "/api/chat", chatRequest{
		Messages:    turn.Messages,
		Model:       turn.Params.Model,
		Temperature: turn.Params.Temperature,
		TopP:        turn.Params.TopP,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return "", ErrStreamTruncated
		}
		if err != nil {
			return "", err
		}

		switch ev.Name {
		case models.EventToken:
			var tok models.TokenPayload
			if err := json.Unmarshal([]byte(ev.Data), &tok); err != nil {
				return "", fmt.Errorf("decode token event: %w", err)
			}
			onToken(tok.Content)
		case models.EventDone:
			var done models.DonePayload
			if err := json.Unmarshal([]byte(ev.Data), &done); err != nil {
				return "", fmt.Errorf("decode done event: %w", err)
			}
			return done.FinishReason, nil
		case models.EventError:
			var payload models.ErrorPayload
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				return "", fmt.Errorf("decode error event: %w", err)
			}
			return "", &RelayError{Type: payload.Error.Type, Message: payload.Error.Message}
		}
	}
}

type titleResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Title asks the relay to name the conversation and returns the cleaned title.
func (c *Client) Title(ctx context.Context, messages []models.Message) (string, error) {
	resp, err := c.post(ctx, "/api/title", struct {
		Messages []models.Message `json:"messages"`
	}{Messages: messages})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode title response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("title response did not include choices")
	}
	title := CleanTitle(out.Choices[0].Message.Content)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("construct request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	relayErr := &RelayError{StatusCode: resp.StatusCode, Type: "http_error", Message: http.StatusText(resp.StatusCode)}
	var payload models.ErrorPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil && payload.Error.Message != "" {
		relayErr.Type = payload.Error.Type
		relayErr.Message = payload.Error.Message
	}
	return nil, relayErr
}
