package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groqchat/internal/config"
	"groqchat/internal/models"
	"groqchat/internal/provider/openai"
	"groqchat/internal/relay"
	"groqchat/internal/server"
	"groqchat/internal/sse"
)

type upstreamRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	Temperature *float64         `json:"temperature"`
	TopP        *float64         `json:"top_p"`
}

// fakeGroq mimics the upstream completion API.
type fakeGroq struct {
	mu     sync.Mutex
	ids    []string
	title  string
	chats  []upstreamRequest
	titles []upstreamRequest
}

func (f *fakeGroq) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/models":
		var out struct {
			Data []map[string]string `json:"data"`
		}
		for _, id := range f.ids {
			out.Data = append(out.Data, map[string]string{"id": id, "object": "model"})
		}
		_ = json.NewEncoder(w).Encode(out)
	case "/chat/completions":
		var req upstreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		if req.Stream {
			f.chats = append(f.chats, req)
		} else {
			f.titles = append(f.titles, req)
		}
		f.mu.Unlock()

		if !req.Stream {
			title := f.title
			if title == "" {
				title = `"Friendly Greeting"`
			}
			content, _ := json.Marshal(title)
			fmt.Fprintf(w, `{"id":"t","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, content)
			return
		}
		w.Header().Set("Content-Type", sse.ContentType)
		for _, chunk := range []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":" there"}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			w.(http.Flusher).Flush()
		}
	default:
		http.NotFound(w, r)
	}
}

func newRelayStack(t *testing.T, upstream *fakeGroq) *Client {
	t.Helper()
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	temp, topP := config.DefaultTemperature, config.DefaultTopP
	cfg := config.Config{
		Server: config.ServerConfig{Port: config.DefaultPort},
		Log:    config.LogConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
		Upstream: config.UpstreamConfig{
			APIKey:       "test-key",
			BaseURL:      up.URL,
			DefaultModel: config.DefaultModel,
			TitleModel:   config.DefaultTitleModel,
		},
		UI: config.UIConfig{FallbackModel: config.DefaultModel, Temperature: &temp, TopP: &topP},
	}

	p, err := openai.New("groq", cfg.Upstream, up.Client())
	require.NoError(t, err)
	rl, err := relay.New(p, cfg.Upstream.TitleModel)
	require.NoError(t, err)
	srv, err := server.New(cfg, rl)
	require.NoError(t, err)

	front := httptest.NewServer(srv.Handler())
	t.Cleanup(front.Close)
	return NewClient(front.URL, front.Client())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTerminalConversation(t *testing.T) {
	upstream := &fakeGroq{ids: []string{"model-a", "model-b"}}
	client := newRelayStack(t, upstream)

	var out bytes.Buffer
	term := NewTerminal(client, &out, Options{NoColor: true}, quietLogger())
	err := term.Run(context.Background(), strings.NewReader("hello\n/quit\n"))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "# LLM Client")
	assert.Contains(t, text, "model model-a, temperature 0.70, top-p 1.00")
	assert.Contains(t, text, "AI: Hi there\n")
	assert.Contains(t, text, "# Friendly Greeting")

	upstream.mu.Lock()
	defer upstream.mu.Unlock()

	require.Len(t, upstream.chats, 1)
	chat := upstream.chats[0]
	assert.Equal(t, "model-a", chat.Model)
	assert.Equal(t, []models.Message{{Role: "user", Content: "hello"}}, chat.Messages)
	require.NotNil(t, chat.Temperature)
	assert.Equal(t, 0.7, *chat.Temperature)
	require.NotNil(t, chat.TopP)
	assert.Equal(t, 1.0, *chat.TopP)

	require.Len(t, upstream.titles, 1)
	title := upstream.titles[0]
	assert.Equal(t, config.DefaultTitleModel, title.Model)
	assert.Equal(t, []models.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "user", Content: relay.TitlePrompt},
	}, title.Messages)
}

func TestTerminalTitleOnlyOnce(t *testing.T) {
	upstream := &fakeGroq{ids: []string{"model-a"}}
	client := newRelayStack(t, upstream)

	var out bytes.Buffer
	term := NewTerminal(client, &out, Options{NoColor: true}, quietLogger())
	require.NoError(t, term.Run(context.Background(), strings.NewReader("hello\nhow are you\n\nagain\n")))

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Len(t, upstream.chats, 3)
	assert.Len(t, upstream.titles, 1)

	last := upstream.chats[2]
	require.Len(t, last.Messages, 5)
	assert.Equal(t, "Hi there", last.Messages[1].Content)
	assert.Equal(t, "again", last.Messages[4].Content)
}

func TestTerminalFallbackModel(t *testing.T) {
	upstream := &fakeGroq{}
	client := newRelayStack(t, upstream)

	var out bytes.Buffer
	term := NewTerminal(client, &out, Options{NoColor: true}, quietLogger())
	require.NoError(t, term.Run(context.Background(), strings.NewReader("/models\nhello\n")))

	assert.Contains(t, out.String(), "no models available")

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	require.Len(t, upstream.chats, 1)
	assert.Equal(t, config.DefaultModel, upstream.chats[0].Model)
}

func TestTerminalCommands(t *testing.T) {
	upstream := &fakeGroq{ids: []string{"model-a", "model-b"}}
	client := newRelayStack(t, upstream)

	input := strings.Join([]string{
		"/models",
		"/model model-b",
		"/temperature 5",
		"/top-p 0.25",
		"/settings",
		"/top-p abc",
		"/bogus",
		"hello",
		"/quit",
	}, "\n")

	var out bytes.Buffer
	term := NewTerminal(client, &out, Options{NoColor: true}, quietLogger())
	require.NoError(t, term.Run(context.Background(), strings.NewReader(input)))

	text := out.String()
	assert.Contains(t, text, "  model-a\n  model-b\n")
	assert.Contains(t, text, "model set to model-b")
	assert.Contains(t, text, "model model-b, temperature 2.00, top-p 0.25")
	assert.Contains(t, text, "error: usage: /top-p <number>")
	assert.Contains(t, text, "error: unknown command /bogus")

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	require.Len(t, upstream.chats, 1)
	assert.Equal(t, "model-b", upstream.chats[0].Model)
	assert.Equal(t, 2.0, *upstream.chats[0].Temperature)
	assert.Equal(t, 0.25, *upstream.chats[0].TopP)
}

func TestTerminalOptionsOverrideDefaults(t *testing.T) {
	upstream := &fakeGroq{ids: []string{"model-a"}}
	client := newRelayStack(t, upstream)

	temp := 0.2
	var out bytes.Buffer
	term := NewTerminal(client, &out, Options{Model: "model-z", Temperature: &temp, NoColor: true}, quietLogger())
	session := term.Start(context.Background())

	s := session.Settings()
	assert.Equal(t, "model-z", s.Model)
	assert.Equal(t, 0.2, s.Temperature)
	assert.Equal(t, 1.0, s.TopP)
}

func TestTerminalReportsStreamFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error":{"message":"upstream provider error","type":"upstream_error"}}`)
		case "/api/models":
			fmt.Fprint(w, `["model-a"]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(failing.Close)

	var out bytes.Buffer
	term := NewTerminal(NewClient(failing.URL, failing.Client()), &out, Options{NoColor: true}, quietLogger())
	require.NoError(t, term.Run(context.Background(), strings.NewReader("hello\n")))

	assert.Contains(t, out.String(), "error: relay error 502 (upstream_error): upstream provider error")
}

func TestTerminalLogsBlankTitle(t *testing.T) {
	upstream := &fakeGroq{ids: []string{"model-a"}, title: `  ""  `}
	client := newRelayStack(t, upstream)

	var out, logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	term := NewTerminal(client, &out, Options{NoColor: true}, logger)
	require.NoError(t, term.Run(context.Background(), strings.NewReader("hello\n")))

	assert.Contains(t, logs.String(), "title generation failed")
	assert.Contains(t, logs.String(), ErrEmptyTitle.Error())
	assert.Equal(t, 1, strings.Count(out.String(), "# "), "heading is printed only at start")
}
