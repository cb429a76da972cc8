// Package speech drives the shared read-aloud device through an explicit
// idle/speaking/paused state machine.
package speech

// Utterance is one unit of speech submitted to the device.
type Utterance struct {
	ID    string
	Text  string
	Rate  float64
	Pitch float64
	Lang  string
}

// DoneFunc is called by a device exactly once when an utterance finishes on
// its own (err == nil) or fails mid-playback (err != nil). It is not called
// for utterances that were cancelled.
type DoneFunc func(err error)

// Device is the platform speech capability. Implementations must never call
// a DoneFunc from inside Cancel or Speak, and must never restart an
// utterance on their own.
type Device interface {
	// Speak starts playing u asynchronously.
	Speak(u Utterance, done DoneFunc) error
	// Pause suspends the current utterance.
	Pause() error
	// Resume continues a paused utterance.
	Resume() error
	// Cancel stops output immediately and discards anything queued.
	Cancel() error
}
