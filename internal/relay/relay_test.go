package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groqchat/internal/models"
)

type fakeUpstream struct {
	models    []string
	modelsErr error
	completed []models.ChatRequest
	streamed  []models.ChatRequest
	raw       json.RawMessage
	err       error
	tokens    []string
}

func (f *fakeUpstream) Name() string { return "fake" }

func (f *fakeUpstream) ListModels(context.Context) ([]string, error) {
	return f.models, f.modelsErr
}

func (f *fakeUpstream) Complete(_ context.Context, req models.ChatRequest) (json.RawMessage, error) {
	f.completed = append(f.completed, req)
	return f.raw, f.err
}

func (f *fakeUpstream) Stream(_ context.Context, req models.ChatRequest) (<-chan models.StreamEvent, error) {
	f.streamed = append(f.streamed, req)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan models.StreamEvent, len(f.tokens))
	for _, tok := range f.tokens {
		ch <- models.StreamEvent{Content: tok}
	}
	close(ch)
	return ch, nil
}

func floatPtr(v float64) *float64 { return &v }

var conversation = []models.Message{
	{Role: models.RoleSystem, Content: "be brief"},
	{Role: models.RoleUser, Content: "hello"},
	{Role: models.RoleAssistant, Content: "Hi there"},
}

func TestNewRequiresUpstream(t *testing.T) {
	_, err := New(nil, "m")
	assert.Error(t, err)
}

func TestBuildChatRequestForwardsMessagesUnchanged(t *testing.T) {
	req := BuildChatRequest(conversation, models.GenerationParams{
		Model:       "model-a",
		Temperature: floatPtr(0.2),
		TopP:        floatPtr(0.9),
	})

	assert.Equal(t, conversation, req.Messages)
	assert.True(t, req.Stream)
	assert.Equal(t, "model-a", req.Model)
	assert.Equal(t, 0.2, *req.Temperature)
	assert.Equal(t, 0.9, *req.TopP)

	// The request owns its slice.
	req.Messages[0].Content = "mutated"
	assert.Equal(t, "be brief", conversation[0].Content)
}

func TestBuildChatRequestOmittedParams(t *testing.T) {
	req := BuildChatRequest(conversation[:1], models.GenerationParams{})
	assert.Empty(t, req.Model)
	assert.Nil(t, req.Temperature)
	assert.Nil(t, req.TopP)
}

func TestBuildTitleRequestAppendsOneInstruction(t *testing.T) {
	input := conversation[1:]
	req := BuildTitleRequest(input, "mixtral-8x7b-32768")

	require.Len(t, req.Messages, len(input)+1)
	assert.Equal(t, input, req.Messages[:len(input)])
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: TitlePrompt}, req.Messages[len(input)])
	assert.False(t, req.Stream)
	assert.Equal(t, "mixtral-8x7b-32768", req.Model)
	assert.Len(t, input, 2, "input must not be modified")
}

func TestBuildTitleRequestEmptyConversation(t *testing.T) {
	req := BuildTitleRequest(nil, "m")
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: TitlePrompt}}, req.Messages)
}

func TestRelayChat(t *testing.T) {
	up := &fakeUpstream{tokens: []string{"Hi", " there"}}
	r, err := New(up, "title")
	require.NoError(t, err)

	events, err := r.Chat(context.Background(), conversation[1:2], models.GenerationParams{Model: "model-a"})
	require.NoError(t, err)

	var out string
	for ev := range events {
		out += ev.Content
	}
	assert.Equal(t, "Hi there", out)
	require.Len(t, up.streamed, 1)
	assert.Equal(t, "model-a", up.streamed[0].Model)
}

func TestRelayChatPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	r, err := New(&fakeUpstream{err: boom}, "title")
	require.NoError(t, err)

	_, err = r.Chat(context.Background(), nil, models.GenerationParams{})
	assert.ErrorIs(t, err, boom)
}

func TestRelayTitle(t *testing.T) {
	up := &fakeUpstream{raw: json.RawMessage(`{"choices":[{"message":{"content":"Greeting"}}]}`)}
	r, err := New(up, "title-model")
	require.NoError(t, err)

	raw, err := r.Title(context.Background(), conversation[1:])
	require.NoError(t, err)
	assert.JSONEq(t, `{"choices":[{"message":{"content":"Greeting"}}]}`, string(raw))

	require.Len(t, up.completed, 1)
	assert.Equal(t, "title-model", up.completed[0].Model)
	assert.Len(t, up.completed[0].Messages, 3)
}

func TestRelayModels(t *testing.T) {
	r, err := New(&fakeUpstream{models: []string{"model-a", "model-b"}}, "t")
	require.NoError(t, err)

	ids, err := r.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"model-a", "model-b"}, ids)

	r, err = New(&fakeUpstream{}, "t")
	require.NoError(t, err)
	ids, err = r.Models(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	boom := errors.New("down")
	r, err = New(&fakeUpstream{modelsErr: boom}, "t")
	require.NoError(t, err)
	_, err = r.Models(context.Background())
	assert.ErrorIs(t, err, boom)
}
