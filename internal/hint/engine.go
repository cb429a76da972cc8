// Package hint implements progressive disclosure of hints and worked
// solutions for a single answer-check feedback event.
package hint

import (
	"fmt"
	"sync"
)

// Outcome is the grading result the feedback event reacts to.
type Outcome int

const (
	Incorrect Outcome = iota
	Correct
)

func (o Outcome) String() string {
	if o == Correct {
		return "correct"
	}
	return "incorrect"
}

// UsageKind tells what the learner revealed.
type UsageKind string

const (
	UsageHint        UsageKind = "hint"
	UsageSolution    UsageKind = "full_solution"
	UsageExplanation UsageKind = "explanation"
)

// Usage is reported to the hint-usage observer. Level is the newly shown hint
// index for UsageHint and -1 otherwise.
type Usage struct {
	Concept string    `json:"concept"`
	Kind    UsageKind `json:"kind"`
	Level   int       `json:"level"`
}

// UsageObserver receives one call per accepted reveal. It must not block.
type UsageObserver func(Usage)

// Feedback is the input that creates an engine.
type Feedback struct {
	Outcome     Outcome
	Hints       []string
	Steps       []string
	Explanation string
	Concept     string
}

// Engine holds the reveal state for one feedback event. Once dismissed every
// operation is a no-op.
type Engine struct {
	mu       sync.Mutex
	feedback Feedback
	observer UsageObserver

	currentHint         int
	solutionRevealed    bool
	explanationRevealed bool
	dismissed           bool
}

// New creates an engine. An incorrect outcome with hints starts at hint 0.
func New(fb Feedback, observer UsageObserver) *Engine {
	if observer == nil {
		observer = func(Usage) {}
	}
	fb.Hints = append([]string(nil), fb.Hints...)
	fb.Steps = append([]string(nil), fb.Steps...)
	return &Engine{feedback: fb, observer: observer}
}

// CanAdvance reports whether Advance is currently offered.
func (e *Engine) CanAdvance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canAdvance()
}

func (e *Engine) canAdvance() bool {
	return !e.dismissed &&
		e.feedback.Outcome == Incorrect &&
		len(e.feedback.Hints) > 0 &&
		!e.solutionRevealed
}

// Advance shows the next hint, or the full solution after the last hint.
// It returns false, without notifying the observer, when not offered.
func (e *Engine) Advance() bool {
	e.mu.Lock()
	if !e.canAdvance() {
		e.mu.Unlock()
		return false
	}

	var usage Usage
	if e.currentHint < len(e.feedback.Hints)-1 {
		e.currentHint++
		usage = Usage{Concept: e.feedback.Concept, Kind: UsageHint, Level: e.currentHint}
	} else {
		e.solutionRevealed = true
		usage = Usage{Concept: e.feedback.Concept, Kind: UsageSolution, Level: -1}
	}
	e.mu.Unlock()

	e.observer(usage)
	return true
}

// CanRevealSolution reports whether the direct solution reveal is offered:
// an incorrect answer with no hints but with solution steps.
func (e *Engine) CanRevealSolution() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canRevealSolution()
}

func (e *Engine) canRevealSolution() bool {
	return !e.dismissed &&
		e.feedback.Outcome == Incorrect &&
		len(e.feedback.Hints) == 0 &&
		len(e.feedback.Steps) > 0 &&
		!e.solutionRevealed
}

// RevealSolution shows the worked steps directly when there are no hints.
func (e *Engine) RevealSolution() bool {
	e.mu.Lock()
	if !e.canRevealSolution() {
		e.mu.Unlock()
		return false
	}
	e.solutionRevealed = true
	concept := e.feedback.Concept
	e.mu.Unlock()

	e.observer(Usage{Concept: concept, Kind: UsageSolution, Level: -1})
	return true
}

// RevealExplanation shows the worked steps on a correct answer. Repeated calls
// are no-ops.
func (e *Engine) RevealExplanation() bool {
	e.mu.Lock()
	if e.dismissed || e.feedback.Outcome != Correct || e.explanationRevealed {
		e.mu.Unlock()
		return false
	}
	e.explanationRevealed = true
	concept := e.feedback.Concept
	e.mu.Unlock()

	e.observer(Usage{Concept: concept, Kind: UsageExplanation, Level: -1})
	return true
}

// Dismiss discards the event's state.
func (e *Engine) Dismiss() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dismissed = true
	e.feedback = Feedback{Outcome: e.feedback.Outcome}
	e.currentHint = 0
}

// Dismissed reports whether Dismiss was called.
func (e *Engine) Dismissed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dismissed
}

// State is a render-ready snapshot of the engine.
type State struct {
	Outcome             string   `json:"outcome"`
	Title               string   `json:"title"`
	Subtitle            string   `json:"subtitle"`
	Explanation         string   `json:"explanation,omitempty"`
	Hint                string   `json:"hint,omitempty"`
	HintNumber          int      `json:"hint_number,omitempty"`
	HintCount           int      `json:"hint_count"`
	HasMoreHints        bool     `json:"has_more_hints"`
	NextAction          string   `json:"next_action,omitempty"`
	CanRevealSolution   bool     `json:"can_reveal_solution"`
	CanShowExplanation  bool     `json:"can_show_explanation"`
	SolutionRevealed    bool     `json:"solution_revealed"`
	ExplanationRevealed bool     `json:"explanation_revealed"`
	Steps               []string `json:"steps,omitempty"`
	LearningTip         string   `json:"learning_tip"`
	Dismissed           bool     `json:"dismissed"`
}

// State returns a snapshot for rendering.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	fb := e.feedback
	st := State{
		Outcome:             fb.Outcome.String(),
		Explanation:         fb.Explanation,
		HintCount:           len(fb.Hints),
		SolutionRevealed:    e.solutionRevealed,
		ExplanationRevealed: e.explanationRevealed,
		Dismissed:           e.dismissed,
	}

	if fb.Outcome == Correct {
		st.Title = "Correct!"
		st.Subtitle = "Great job! Let's see why."
		st.LearningTip = "You got it right! Understanding why helps you remember better."
		st.CanShowExplanation = !e.dismissed && !e.explanationRevealed && len(fb.Steps) > 0
		if e.explanationRevealed {
			st.Steps = append([]string(nil), fb.Steps...)
		}
		return st
	}

	st.Title = "Not Quite..."
	st.Subtitle = "Let's work through this together."
	st.LearningTip = "Mistakes help us learn! Take your time to understand each step."
	if len(fb.Hints) > 0 {
		st.Hint = fb.Hints[e.currentHint]
		st.HintNumber = e.currentHint + 1
	}
	st.HasMoreHints = e.canAdvance()
	if st.HasMoreHints {
		if e.currentHint < len(fb.Hints)-1 {
			st.NextAction = fmt.Sprintf("Show Next Hint (%d/%d)", e.currentHint+2, len(fb.Hints))
		} else {
			st.NextAction = "Show Me How to Solve It"
		}
	}
	st.CanRevealSolution = e.canRevealSolution()
	if e.solutionRevealed {
		st.Steps = append([]string(nil), fb.Steps...)
	}
	return st
}
