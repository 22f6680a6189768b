package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"groqchat/internal/models"
)

var errInvalidContent = errors.New("invalid message content")

// ChatBody models the POST /api/chat request payload.
type ChatBody struct {
	Messages    []ChatMessage
	Model       string
	Temperature *float64
	TopP        *float64
}

// UnmarshalJSON accepts both the camelCase keys sent by the UI and the
// snake_case top_p used by OpenAI clients.
func (b *ChatBody) UnmarshalJSON(data []byte) error {
	type alias struct {
		Messages    []ChatMessage `json:"messages"`
		Model       string        `json:"model"`
		Temperature *float64      `json:"temperature"`
		TopP        *float64      `json:"topP"`
		TopPSnake   *float64      `json:"top_p"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	b.Messages = raw.Messages
	b.Model = strings.TrimSpace(raw.Model)
	b.Temperature = raw.Temperature
	b.TopP = raw.TopP
	if b.TopP == nil {
		b.TopP = raw.TopPSnake
	}
	return nil
}

// Params returns the generation overrides carried by the body.
func (b ChatBody) Params() models.GenerationParams {
	return models.GenerationParams{
		Model:       b.Model,
		Temperature: b.Temperature,
		TopP:        b.TopP,
	}
}

// ToMessages converts the body's conversation into the canonical form.
func (b ChatBody) ToMessages() []models.Message {
	return toMessages(b.Messages)
}

// TitleBody models the POST /api/title request payload.
type TitleBody struct {
	Messages []ChatMessage `json:"messages"`
}

// ToMessages converts the body's conversation into the canonical form.
func (b TitleBody) ToMessages() []models.Message {
	return toMessages(b.Messages)
}

// ChatMessage captures a single message within a request body.
type ChatMessage struct {
	Role    string
	Content string
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = raw.Role
	m.Content = content
	return nil
}

func toMessages(in []ChatMessage) []models.Message {
	out := make([]models.Message, 0, len(in))
	for _, m := range in {
		out = append(out, models.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// extractMessageContent flattens content; non-text segments are dropped.
func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				continue
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}
