// Package relay forwards chat, title and model listing calls to the upstream.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"groqchat/internal/models"
	"groqchat/internal/provider"
)

// TitlePrompt is appended to a conversation to ask for its title.
const TitlePrompt = "Based on our conversation, suggest a short and concise title for this chat (max 5 words), keep the original language."

// Relay dispatches requests to a single upstream.
type Relay struct {
	upstream   provider.Upstream
	titleModel string
}

// New constructs a relay backed by the provided upstream.
func New(upstream provider.Upstream, titleModel string) (*Relay, error) {
	if upstream == nil {
		return nil, errors.New("upstream must not be nil")
	}
	return &Relay{
		upstream:   upstream,
		titleModel: titleModel,
	}, nil
}

// Chat opens a streamed completion for the conversation.
func (r *Relay) Chat(ctx context.Context, messages []models.Message, params models.GenerationParams) (<-chan models.StreamEvent, error) {
	events, err := r.upstream.Stream(ctx, BuildChatRequest(messages, params))
	if err != nil {
		return nil, fmt.Errorf("%s chat stream: %w", r.upstream.Name(), err)
	}
	return events, nil
}

// Title requests a single-shot completion naming the conversation and
// returns the upstream body untouched.
func (r *Relay) Title(ctx context.Context, messages []models.Message) (json.RawMessage, error) {
	raw, err := r.upstream.Complete(ctx, BuildTitleRequest(messages, r.titleModel))
	if err != nil {
		return nil, fmt.Errorf("%s title completion: %w", r.upstream.Name(), err)
	}
	return raw, nil
}

// Models lists upstream model ids in upstream order.
func (r *Relay) Models(ctx context.Context) ([]string, error) {
	ids, err := r.upstream.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s list models: %w", r.upstream.Name(), err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// BuildChatRequest forwards messages unchanged and injects only the
// parameters the caller supplied.
func BuildChatRequest(messages []models.Message, params models.GenerationParams) models.ChatRequest {
	return models.ChatRequest{
		Model:       params.Model,
		Messages:    cloneMessages(messages, 0),
		Stream:      true,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
}

// BuildTitleRequest appends the title instruction as a single user message.
func BuildTitleRequest(messages []models.Message, model string) models.ChatRequest {
	msgs := cloneMessages(messages, 1)
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: TitlePrompt})
	return models.ChatRequest{
		Model:    model,
		Messages: msgs,
	}
}

func cloneMessages(messages []models.Message, extra int) []models.Message {
	out := make([]models.Message, len(messages), len(messages)+extra)
	copy(out, messages)
	return out
}
