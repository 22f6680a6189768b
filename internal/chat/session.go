// Package chat implements the client side of a conversation with the relay.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"groqchat/internal/models"
)

// DefaultHeading is shown until a title has been generated.
const DefaultHeading = "LLM Client"

var (
	// ErrBusy is returned when a submission is attempted while a reply is streaming.
	ErrBusy = errors.New("a reply is still streaming")
	// ErrEmptyInput is returned for blank submissions.
	ErrEmptyInput = errors.New("message is empty")
	// ErrNotStreaming is returned for stream transitions outside the awaiting state.
	ErrNotStreaming = errors.New("no reply is streaming")
)

// Status is the state of a Session.
type Status int

const (
	StatusIdle Status = iota
	StatusAwaiting
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaiting:
		return "awaiting-response"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Message is a transcript entry.
type Message struct {
	ID string
	models.Message
}

// Turn is what a submission sends upstream: the conversation so far and a
// snapshot of the settings taken at submit time.
type Turn struct {
	Messages []models.Message
	Params   models.GenerationParams
}

// Session holds one conversation. It is safe for concurrent use so that
// title fetches may complete on another goroutine.
type Session struct {
	mu       sync.Mutex
	status   Status
	messages []Message
	settings Settings
	heading  string
	titled   bool
	lastErr  error
}

// NewSession starts an empty conversation.
func NewSession(settings Settings) *Session {
	return &Session{
		settings: settings,
		heading:  DefaultHeading,
	}
}

// Submit appends the user's message plus an empty assistant reply and moves
// to awaiting. It is rejected while a reply is streaming.
func (s *Session) Submit(text string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAwaiting {
		return Turn{}, ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyInput
	}

	s.messages = append(s.messages, newMessage(models.RoleUser, text))
	turn := Turn{
		Messages: s.conversationLocked(),
		Params:   s.settings.Params(),
	}
	s.messages = append(s.messages, newMessage(models.RoleAssistant, ""))
	s.status = StatusAwaiting
	s.lastErr = nil
	return turn, nil
}

// Token appends a streamed chunk to the in-progress reply.
func (s *Session) Token(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusAwaiting {
		return ErrNotStreaming
	}
	s.messages[len(s.messages)-1].Content += chunk
	return nil
}

// Complete finishes the in-progress reply. On the first completed exchange
// it returns the conversation to title and true; afterwards it returns false.
func (s *Session) Complete() ([]models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusAwaiting {
		return nil, false, ErrNotStreaming
	}
	s.status = StatusIdle

	if s.titled {
		return nil, false, nil
	}
	s.titled = true
	return s.conversationLocked(), true, nil
}

// Fail records a stream failure. An empty in-progress reply is dropped;
// partial content is kept.
func (s *Session) Fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusAwaiting {
		return ErrNotStreaming
	}
	if last := s.messages[len(s.messages)-1]; last.Content == "" {
		s.messages = s.messages[:len(s.messages)-1]
	}
	s.status = StatusError
	s.lastErr = err
	return nil
}

// SetTitle replaces the heading with a cleaned generated title. Blank titles are ignored.
func (s *Session) SetTitle(raw string) {
	title := CleanTitle(raw)
	if title == "" {
		return
	}
	s.mu.Lock()
	s.heading = title
	s.mu.Unlock()
}

// UpdateSettings changes the settings used by the next submission.
func (s *Session) UpdateSettings(fn func(Settings) Settings) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = fn(s.settings)
	return s.settings
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Heading() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heading
}

// Err is the failure that moved the session into StatusError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) conversationLocked() []models.Message {
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Message)
	}
	return out
}

func newMessage(role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Message: models.Message{Role: role, Content: content},
	}
}
