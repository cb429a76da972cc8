package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/inference"
)

// FallbackReply is shown to the learner whenever a turn fails for any reason.
const FallbackReply = "Sorry, I'm having trouble connecting right now. Please try again in a moment! 😊"

var (
	// ErrBusy is returned when a turn is already in flight. The call is dropped.
	ErrBusy = errors.New("request already pending")
	// ErrEmptyMessage is returned for blank input. The call is dropped.
	ErrEmptyMessage = errors.New("message is empty")
)

// Turn is the settled outcome of one accepted Submit call.
type Turn struct {
	Reply domain.Message
	Usage *inference.Usage
	// Err is the gateway failure behind a fallback reply; nil on success.
	// It is for logging only and never shown to the learner.
	Err error
}

// Failed reports whether the reply is the fallback message.
func (t *Turn) Failed() bool {
	return t.Err != nil
}

// Session owns one learner's conversation and allows a single in-flight turn.
type Session struct {
	completer   inference.Completer
	topic       domain.Topic
	learnerName string

	mu      sync.Mutex
	history []domain.Message
	pending bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithGreeting seeds the history with the tutor's opening message.
func WithGreeting() SessionOption {
	return func(s *Session) {
		s.history = append(s.history, domain.AssistantMessage(Greeting(s.topic, s.learnerName)))
	}
}

// WithHistory seeds the history with prior messages. System entries are kept
// out of the stored history.
func WithHistory(history []domain.Message) SessionOption {
	return func(s *Session) {
		for _, m := range history {
			if m.Role != domain.RoleSystem {
				s.history = append(s.history, m)
			}
		}
	}
}

// NewSession creates a session for the given topic and learner.
func NewSession(completer inference.Completer, topic domain.Topic, learnerName string, opts ...SessionOption) *Session {
	s := &Session{
		completer:   completer,
		topic:       topic,
		learnerName: learnerName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Topic returns the session's topic.
func (s *Session) Topic() domain.Topic {
	return s.topic
}

// Pending reports whether a turn is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Submit runs one chat turn. It returns ErrBusy or ErrEmptyMessage without
// touching history when the call is rejected. An accepted call always appends
// the user message and exactly one assistant message, the fallback reply on
// failure, and reports the failure in Turn.Err.
func (s *Session) Submit(ctx context.Context, userText string) (*Turn, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	prior := make([]domain.Message, len(s.history))
	copy(prior, s.history)
	s.history = append(s.history, domain.UserMessage(userText))
	s.pending = true
	s.mu.Unlock()

	turn := s.dispatch(ctx, prior, userText)

	s.mu.Lock()
	s.history = append(s.history, turn.Reply)
	s.pending = false
	s.mu.Unlock()

	return turn, nil
}

func (s *Session) dispatch(ctx context.Context, prior []domain.Message, userText string) (turn *Turn) {
	defer func() {
		if r := recover(); r != nil {
			turn = &Turn{Reply: domain.AssistantMessage(FallbackReply), Err: panicError{value: r}}
		}
	}()

	messages := BuildContext(s.topic, s.learnerName, prior, userText)
	res, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return &Turn{Reply: domain.AssistantMessage(FallbackReply), Err: err}
	}
	if res == nil {
		return &Turn{Reply: domain.AssistantMessage(FallbackReply), Err: errors.New("empty completion result")}
	}
	return &Turn{Reply: domain.AssistantMessage(res.Reply), Usage: res.Usage}
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("completer panicked: %v", p.value)
}
