package tutor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/config"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/inference"
)

type fakeCompleter struct {
	reply   string
	err     error
	release chan struct{}
	started chan struct{}
	calls   int32
	last    []domain.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []domain.Message) (*inference.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = messages
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &inference.Result{Reply: f.reply, Usage: &inference.Usage{TotalTokens: 12}}, nil
}

type panickingCompleter struct{}

func (panickingCompleter) Complete(context.Context, []domain.Message) (*inference.Result, error) {
	panic("boom")
}

func TestSubmitSuccessGrowsHistoryByTwo(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: "16"}
	s := NewSession(fc, domain.TopicPercentages, "Sam", WithGreeting())
	before := len(s.History())

	turn, err := s.Submit(context.Background(), "What is 20% of 80?")
	if err != nil {
		t.Fatalf("Submit rejected: %v", err)
	}
	if turn.Failed() || turn.Reply.Content != "16" {
		t.Errorf("unexpected turn %+v", turn)
	}
	if turn.Usage == nil || turn.Usage.TotalTokens != 12 {
		t.Errorf("usage not propagated: %+v", turn.Usage)
	}

	h := s.History()
	if len(h) != before+2 {
		t.Fatalf("expected history to grow by 2, got %d -> %d", before, len(h))
	}
	if h[len(h)-2] != domain.UserMessage("What is 20% of 80?") || h[len(h)-1] != domain.AssistantMessage("16") {
		t.Errorf("unexpected tail %+v", h[len(h)-2:])
	}
	if s.Pending() {
		t.Error("pending should be cleared after settlement")
	}

	// The greeting is forwarded, the new user text is last, and nothing in
	// stored history is a system message.
	if len(fc.last) != 3 || fc.last[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected outbound messages %+v", fc.last)
	}
	for _, m := range h {
		if m.Role == domain.RoleSystem {
			t.Error("system message stored in history")
		}
	}
}

func TestSubmitTrimsInput(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: "0.5"}
	s := NewSession(fc, domain.TopicDecimals, "Sam")

	if _, err := s.Submit(context.Background(), "  What is 1/2 as a decimal?\n"); err != nil {
		t.Fatalf("Submit rejected: %v", err)
	}
	history := s.History()
	if history[0].Content != "What is 1/2 as a decimal?" {
		t.Errorf("stored message not trimmed: %q", history[0].Content)
	}
	if last := fc.last[len(fc.last)-1]; last.Content != "What is 1/2 as a decimal?" {
		t.Errorf("sent message not trimmed: %q", last.Content)
	}
}

func TestSubmitFailureAppendsFallback(t *testing.T) {
	t.Parallel()

	upstream := &inference.UpstreamError{Kind: inference.KindRateLimited, StatusCode: http.StatusTooManyRequests}
	s := NewSession(&fakeCompleter{err: upstream}, domain.TopicDecimals, "")

	turn, err := s.Submit(context.Background(), "help")
	if err != nil {
		t.Fatalf("Submit rejected: %v", err)
	}
	if !turn.Failed() || !errors.Is(turn.Err, upstream) {
		t.Errorf("expected upstream error in turn, got %v", turn.Err)
	}

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(h))
	}
	if h[1] != domain.AssistantMessage(FallbackReply) {
		t.Errorf("expected fallback reply, got %+v", h[1])
	}
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: "x"}
	s := NewSession(fc, domain.TopicFractions, "Sam")
	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := s.Submit(context.Background(), in); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Submit(%q) err = %v", in, err)
		}
	}
	if len(s.History()) != 0 || atomic.LoadInt32(&fc.calls) != 0 {
		t.Error("blank input must not change history or call the gateway")
	}
}

func TestSubmitWhilePendingIsDropped(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{
		reply:   "first",
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := NewSession(fc, domain.TopicFractions, "Sam")

	done := make(chan *Turn, 1)
	go func() {
		turn, _ := s.Submit(context.Background(), "a")
		done <- turn
	}()

	select {
	case <-fc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the gateway")
	}

	if !s.Pending() {
		t.Fatal("expected pending while first request is in flight")
	}
	snapshot := s.History()
	if _, err := s.Submit(context.Background(), "b"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got := s.History(); len(got) != len(snapshot) {
		t.Fatalf("second submit changed history: %+v", got)
	}

	close(fc.release)
	select {
	case turn := <-done:
		if turn.Reply.Content != "first" {
			t.Errorf("unexpected reply %q", turn.Reply.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never settled")
	}

	h := s.History()
	if len(h) != 2 || h[0].Content != "a" {
		t.Errorf("unexpected history %+v", h)
	}
	if atomic.LoadInt32(&fc.calls) != 1 {
		t.Errorf("expected one gateway call, got %d", fc.calls)
	}
}

func TestSubmitSequentialCalls(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{reply: "ok"}
	s := NewSession(fc, domain.TopicNumberSense, "Sam")
	for i := 0; i < 3; i++ {
		if _, err := s.Submit(context.Background(), "question"); err != nil {
			t.Fatalf("submit %d rejected: %v", i, err)
		}
	}
	if got := len(s.History()); got != 6 {
		t.Errorf("expected 6 messages, got %d", got)
	}
	// Third call forwards the four prior messages plus system and user.
	if len(fc.last) != 6 {
		t.Errorf("expected 6 outbound messages, got %d", len(fc.last))
	}
}

func TestSubmitRecoversFromCompleterPanic(t *testing.T) {
	t.Parallel()

	s := NewSession(panickingCompleter{}, domain.TopicFractions, "Sam")
	turn, err := s.Submit(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Submit rejected: %v", err)
	}
	if !turn.Failed() || turn.Reply.Content != FallbackReply {
		t.Errorf("expected fallback turn, got %+v", turn)
	}
	if s.Pending() {
		t.Error("pending must be cleared after a panic")
	}
}

func TestSubmitMissingCredentialEndToEnd(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := inference.NewGateway(config.InferenceConfig{Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	s := NewSession(gw, domain.TopicPercentages, "Sam")

	turn, err := s.Submit(context.Background(), "What is 20% of 80?")
	if err != nil {
		t.Fatalf("Submit rejected: %v", err)
	}
	var cfgErr *inference.ConfigurationError
	if !errors.As(turn.Err, &cfgErr) || cfgErr.Reason != inference.ReasonMissingCredential {
		t.Fatalf("expected missing_credential, got %v", turn.Err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no network attempt, got %d", hits)
	}
	h := s.History()
	if len(h) != 2 || h[1].Content != FallbackReply {
		t.Errorf("expected fallback appended, got %+v", h)
	}
}

func TestWithHistoryDropsSystemEntries(t *testing.T) {
	t.Parallel()

	s := NewSession(&fakeCompleter{}, domain.TopicFractions, "Sam", WithHistory([]domain.Message{
		{Role: domain.RoleSystem, Content: "x"},
		domain.UserMessage("y"),
	}))
	if h := s.History(); len(h) != 1 || h[0].Role != domain.RoleUser {
		t.Errorf("unexpected history %+v", h)
	}
}
