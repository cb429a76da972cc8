// Package chatlog writes tutoring conversation and hint-usage events as
// per-session NDJSON files. Logging never blocks the caller.
package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/mathtutor/internal/config"
)

// Event channels and types.
const (
	ChannelChat     = "chat_http"
	ChannelTutor    = "tutor_session"
	ChannelFeedback = "feedback"

	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"

	EventUserMessage      = "chat_user_message"
	EventAssistantMessage = "chat_assistant_message"
	EventHintUsed         = "hint_used"
)

// Event is one line of a conversation log.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction,omitempty"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger accepts events for asynchronous persistence.
type Logger interface {
	Log(Event)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event)    {}
func (Noop) Close() error { return nil }

// FileLogger appends events to <dir>/<user>/<session>.ndjson from a single
// writer goroutine.
type FileLogger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

var _ Logger = (*FileLogger)(nil)

// New creates the log directory and starts the writer.
func New(cfg config.ConversationLogConfig, logger *slog.Logger) (*FileLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}

	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Open returns a FileLogger when logging is enabled and Noop otherwise.
func Open(cfg config.ConversationLogConfig, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return New(cfg, logger)
}

// Log enqueues ev. Events are dropped when the queue is full or the logger
// is closed.
func (l *FileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("Conversation log queue full, dropping events", "dropped", n)
		}
	}
}

// Close drains queued events and stops the writer.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		if err := l.write(ev); err != nil {
			l.logger.Warn("Failed to write conversation log", "user_id", ev.UserID, "session_id", ev.SessionID, "error", err)
		}
	}
}

func (l *FileLogger) write(ev Event) error {
	userDir := filepath.Join(l.dir, safeName(ev.UserID))
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return err
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(userDir, safeName(ev.SessionID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// safeName turns an identifier into a single path element.
func safeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

var (
	ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(s string) string {
	s = ansiSequence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = controlChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
