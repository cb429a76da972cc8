package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Player is an external command that plays an audio file once and exits.
type Player struct {
	Name string
	Args []string
}

// knownPlayers are tried in order by DetectPlayer. None of them loop.
var knownPlayers = []Player{
	{Name: "mpg123", Args: []string{"-q"}},
	{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{Name: "mpv", Args: []string{"--no-video", "--really-quiet"}},
	{Name: "afplay"},
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// DetectPlayer finds an installed MP3 player. A non-empty preferred name is
// the only candidate considered.
func DetectPlayer(preferred string) (Player, bool) {
	if preferred != "" {
		if _, err := lookPath(preferred); err != nil {
			return Player{}, false
		}
		for _, p := range knownPlayers {
			if p.Name == preferred {
				return p, true
			}
		}
		return Player{Name: preferred}, true
	}
	for _, p := range knownPlayers {
		if _, err := lookPath(p.Name); err == nil {
			return p, true
		}
	}
	return Player{}, false
}

// ProcessDevice synthesizes each utterance and plays it through an external
// player process. Pause and resume suspend the process where the platform
// supports it.
type ProcessDevice struct {
	synth  Synthesizer
	player Player
	logger *slog.Logger

	mu      sync.Mutex
	current *playback
}

type playback struct {
	id     string
	cancel context.CancelFunc
	proc   *os.Process
	paused bool
}

var _ Device = (*ProcessDevice)(nil)

// NewProcessDevice creates a device playing through player.
func NewProcessDevice(synth Synthesizer, player Player, logger *slog.Logger) *ProcessDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDevice{synth: synth, player: player, logger: logger}
}

// Speak starts synthesis and playback in the background.
func (d *ProcessDevice) Speak(u Utterance, done DoneFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{id: u.ID, cancel: cancel}
	d.current = pb

	go d.run(ctx, pb, u, done)
	return nil
}

func (d *ProcessDevice) run(ctx context.Context, pb *playback, u Utterance, done DoneFunc) {
	path, err := d.render(ctx, u)
	if err != nil {
		d.finish(ctx, pb, done, err)
		return
	}
	defer os.Remove(path)

	args := append(append([]string{}, d.player.Args...), path)
	cmd := exec.CommandContext(ctx, d.player.Name, args...)

	d.mu.Lock()
	if ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	if err := cmd.Start(); err != nil {
		d.mu.Unlock()
		d.finish(ctx, pb, done, fmt.Errorf("failed to start %s: %w", d.player.Name, err))
		return
	}
	pb.proc = cmd.Process
	if pb.paused {
		if err := suspendProcess(pb.proc); err != nil {
			d.logger.Warn("Failed to suspend player", "utterance_id", pb.id, "error", err)
		}
	}
	d.mu.Unlock()

	d.finish(ctx, pb, done, cmd.Wait())
}

// finish reports completion unless the playback was cancelled or replaced.
// Both are checked under mu, which Cancel and Speak also hold.
func (d *ProcessDevice) finish(ctx context.Context, pb *playback, done DoneFunc, err error) {
	d.mu.Lock()
	if ctx.Err() != nil || d.current != pb {
		d.mu.Unlock()
		return
	}
	d.current = nil
	d.mu.Unlock()
	pb.cancel()
	done(err)
}

func (d *ProcessDevice) render(ctx context.Context, u Utterance) (string, error) {
	audio, err := d.synth.Synthesize(ctx, u.Text, u.Rate)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	tmp, err := os.CreateTemp("", "mathtutor_speech_*.mp3")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := io.Copy(tmp, audio); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	return tmp.Name(), nil
}

// Pause suspends the player process.
func (d *ProcessDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return nil
	}
	d.current.paused = true
	if d.current.proc == nil {
		return nil
	}
	return suspendProcess(d.current.proc)
}

// Resume continues a suspended player process.
func (d *ProcessDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return nil
	}
	d.current.paused = false
	if d.current.proc == nil {
		return nil
	}
	return continueProcess(d.current.proc)
}

// Cancel kills synthesis or playback in progress.
func (d *ProcessDevice) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	return nil
}

func (d *ProcessDevice) cancelLocked() {
	if d.current == nil {
		return
	}
	d.current.cancel()
	d.current = nil
}
