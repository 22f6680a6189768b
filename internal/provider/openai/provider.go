package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"groqchat/internal/config"
	"groqchat/internal/models"
	"groqchat/internal/provider"
	"groqchat/internal/sse"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "groqchat/0.1"
	streamBuffer    = 16
)

// Provider implements provider.Upstream for OpenAI-compatible APIs.
// Streaming and model listing go through go-openai; the title completion is
// a raw request so that the upstream body can be returned byte for byte.
type Provider struct {
	name         string
	apiKey       string
	defaultModel string
	doer         upstreamDoer
	api          *gopenai.Client
	chatURL      string
}

var _ provider.Upstream = (*Provider)(nil)

// New creates a new OpenAI-compatible provider.
func New(name string, cfg config.UpstreamConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	doer := upstreamDoer{name: name, client: client, headers: cfg.Headers}

	apiCfg := gopenai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL
	apiCfg.HTTPClient = doer

	return &Provider{
		name:         name,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		doer:         doer,
		api:          gopenai.NewClientWithConfig(apiCfg),
		chatURL:      baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// ListModels returns upstream model ids in the order the upstream lists them.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	listing, err := p.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s list models request failed: %w", p.name, classifyError(err))
	}

	ids := make([]string, 0, len(listing.Models))
	for _, m := range listing.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Complete performs a non-streamed chat completion and returns the upstream body untouched.
func (p *Provider) Complete(ctx context.Context, req models.ChatRequest) (json.RawMessage, error) {
	req.Stream = false
	payload := p.buildChatPayload(req)

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.chatURL, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat request failed: %w", p.name, err)
	}
	defer httpResp.Body.Close()

	var raw json.RawMessage
	if err := decodeJSON(httpResp.Body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Stream performs a streamed chat completion. Deltas are delivered on the
// returned channel in arrival order; the channel is closed when the upstream
// finishes, fails (a final event carries Err) or ctx is cancelled.
func (p *Provider) Stream(ctx context.Context, req models.ChatRequest) (<-chan models.StreamEvent, error) {
	stream, err := p.api.CreateChatCompletionStream(ctx, p.buildStreamRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%s chat stream request failed: %w", p.name, classifyError(err))
	}

	events := make(chan models.StreamEvent, streamBuffer)
	go func() {
		defer close(events)
		defer stream.Close()

		if err := p.readStream(ctx, stream, events); err != nil {
			select {
			case events <- models.StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

func (p *Provider) readStream(ctx context.Context, stream *gopenai.ChatCompletionStream, events chan<- models.StreamEvent) error {
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classifyError(err)
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		out := models.StreamEvent{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		if out.Content == "" && out.FinishReason == "" {
			continue
		}

		select {
		case events <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Provider) buildStreamRequest(req models.ChatRequest) gopenai.ChatCompletionRequest {
	messages := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, gopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return gopenai.ChatCompletionRequest{
		Model:       p.modelOrDefault(req.Model),
		Messages:    messages,
		Stream:      true,
		Temperature: sdkFloat(req.Temperature),
		TopP:        sdkFloat(req.TopP),
	}
}

// sdkFloat maps an optional parameter onto go-openai's omitempty float32.
// An explicit zero is sent as the smallest non-zero float32 so that it is
// not dropped from the payload.
func sdkFloat(v *float64) float32 {
	if v == nil {
		return 0
	}
	if *v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(*v)
}

func (p *Provider) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return req, nil
}

func (p *Provider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

type chatPayload struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildChatPayload(req models.ChatRequest) chatPayload {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return chatPayload{
		Model:       p.modelOrDefault(req.Model),
		Messages:    messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
}

// upstreamDoer is the HTTP client shared by the raw path and go-openai. It
// adds the configured headers and turns error statuses into *provider.APIError
// before go-openai sees the response.
type upstreamDoer struct {
	name    string
	client  *http.Client
	headers map[string]string
}

func (d upstreamDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	slog.Debug("upstream request", "provider", d.name, "method", req.Method, "url", req.URL.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}

	if req.Header.Get("Accept") == sse.ContentType {
		if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != sse.ContentType {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: got %q", provider.ErrStreamingUnsupported, resp.Header.Get("Content-Type"))
		}
	}
	return resp, nil
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	apiErr := &provider.APIError{StatusCode: resp.StatusCode}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// convertError maps go-openai's error types onto provider.APIError. Errors
// already produced by upstreamDoer pass through unchanged.
func convertError(err error) error {
	var sdkAPIErr *gopenai.APIError
	if errors.As(err, &sdkAPIErr) {
		status := sdkAPIErr.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		return &provider.APIError{
			StatusCode: status,
			Type:       sdkAPIErr.Type,
			Message:    sdkAPIErr.Message,
		}
	}

	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		return &provider.APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
		}
	}
	return err
}

// classifyError marks undecodable upstream bodies as malformed and converts
// everything else with convertError. Error chunks in a stream arrive as
// go-openai API errors.
func classifyError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	return convertError(err)
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	return nil
}
