package models

// Roles accepted by OpenAI-compatible chat APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversational message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams holds the per-request tuning knobs. Nil fields are left
// for the upstream to default.
type GenerationParams struct {
	Model       string
	Temperature *float64
	TopP        *float64
}

// ChatRequest is the canonical completion request sent upstream.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Stream      bool
	Temperature *float64
	TopP        *float64
}

// StreamEvent carries one incremental chunk of a streamed completion.
// Exactly one of Content/FinishReason/Err is meaningful per event, except
// that the final content chunk may also carry a finish reason.
type StreamEvent struct {
	Content      string
	FinishReason string
	Err          error
}

// Event names on the relay's chat stream.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// TokenPayload is the data of a token event.
type TokenPayload struct {
	Content string `json:"content"`
}

// DonePayload is the data of the terminal done event.
type DonePayload struct {
	FinishReason string `json:"finish_reason,omitempty"`
}

// ErrorPayload is the OpenAI-style error envelope used in JSON error
// responses and in error events.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}
