package speech

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Status is the playback state.
type Status int

const (
	StatusIdle Status = iota
	StatusSpeaking
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusSpeaking:
		return "speaking"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "speaking":
		*s = StatusSpeaking
	case "paused":
		*s = StatusPaused
	default:
		return fmt.Errorf("unknown playback status %q", text)
	}
	return nil
}

// Default voice parameters.
const (
	DefaultRate  = 0.85
	DefaultPitch = 1.0
	defaultLang  = "en-US"
)

// Options tune a single Speak call. Zero Rate and Pitch mean the defaults.
type Options struct {
	StartFrom string  `json:"startFrom,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
}

// State is a snapshot of the controller.
type State struct {
	Available   bool   `json:"available"`
	Status      Status `json:"status"`
	UtteranceID string `json:"utterance_id,omitempty"`
}

// Controller owns the single shared speech device. All playback state changes
// go through Speak, Pause, Resume, Stop and the device's completion callback.
type Controller struct {
	device Device
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	active  *Utterance
	subs    map[int]chan State
	nextSub int
}

// NewController creates a controller for device. A nil device means the
// platform has no speech capability and every operation is a no-op.
func NewController(device Device, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		device: device,
		logger: logger,
		subs:   make(map[int]chan State),
	}
}

// Available reports whether playback controls should be offered.
func (c *Controller) Available() bool {
	return c.device != nil
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	st := State{Available: c.device != nil, Status: c.status}
	if c.active != nil {
		st.UtteranceID = c.active.ID
	}
	return st
}

// Speak starts reading text aloud, superseding any current utterance. It
// returns the new utterance ID, or "" when nothing was started.
func (c *Controller) Speak(text string, opts Options) string {
	if c.device == nil {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.stopLocked()
	}

	text = trimToStart(text, opts.StartFrom)
	if strings.TrimSpace(text) == "" {
		return ""
	}

	u := Utterance{
		ID:    uuid.NewString(),
		Text:  text,
		Rate:  opts.Rate,
		Pitch: opts.Pitch,
		Lang:  defaultLang,
	}
	if u.Rate <= 0 {
		u.Rate = DefaultRate
	}
	if u.Pitch <= 0 {
		u.Pitch = DefaultPitch
	}

	id := u.ID
	if err := c.device.Speak(u, func(err error) { c.finish(id, err) }); err != nil {
		c.logger.Warn("Speech device failed to start", "utterance_id", id, "error", err)
		return ""
	}

	c.active = &u
	c.status = StatusSpeaking
	c.logger.Info("Speech started", "utterance_id", id, "chars", len(text))
	c.publish()
	return id
}

// Pause suspends playback. It is a no-op unless speaking.
func (c *Controller) Pause() {
	if c.device == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusSpeaking {
		return
	}
	if err := c.device.Pause(); err != nil {
		c.logger.Warn("Speech pause failed", "utterance_id", c.active.ID, "error", err)
		return
	}
	c.status = StatusPaused
	c.publish()
}

// Resume continues paused playback. It is a no-op unless paused.
func (c *Controller) Resume() {
	if c.device == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPaused {
		return
	}
	if err := c.device.Resume(); err != nil {
		c.logger.Warn("Speech resume failed", "utterance_id", c.active.ID, "error", err)
		return
	}
	c.status = StatusSpeaking
	c.publish()
}

// Stop cancels any output and returns to idle. It is always safe to call and
// must be called when the owner of the controller goes away.
func (c *Controller) Stop() {
	if c.device == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if err := c.device.Cancel(); err != nil {
		c.logger.Warn("Speech cancel failed", "error", err)
	}
	wasActive := c.active != nil
	c.active = nil
	c.status = StatusIdle
	if wasActive {
		c.logger.Info("Speech stopped")
		c.publish()
	}
}

// finish handles the device's completion signal. Signals for utterances that
// are no longer active are ignored.
func (c *Controller) finish(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.ID != id {
		return
	}
	if err != nil {
		c.logger.Warn("Speech device error", "utterance_id", id, "error", err)
	} else {
		c.logger.Info("Speech completed", "utterance_id", id)
	}
	c.active = nil
	c.status = StatusIdle
	c.publish()
}

// Subscribe returns a channel of state changes and a cancel function. Slow
// subscribers miss intermediate states.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshot()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publish() {
	st := c.snapshot()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// trimToStart drops everything before the first case-insensitive match of
// startFrom. The full text is kept when there is no match. Offsets are taken
// from text itself since case mapping can change byte lengths.
func trimToStart(text, startFrom string) string {
	if startFrom == "" {
		return text
	}
	n := utf8.RuneCountInString(startFrom)
	for i := range text {
		end := i
		for k := 0; k < n && end < len(text); k++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		if strings.EqualFold(text[i:end], startFrom) {
			return text[i:]
		}
	}
	return text
}
