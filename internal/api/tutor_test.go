//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/tutor"
)

func newTutorRouter(completer inference.Completer, learner *domain.Learner) (http.Handler, *tutor.Registry, *recordingLog) {
	sessions := tutor.NewRegistry()
	log := &recordingLog{}
	h := NewTutorHandler(completer, sessions, nil, log, 0)
	return newTestRouter(h, "anon_1", learner), sessions, log
}

func TestTutorSessionStartsWithGreeting(t *testing.T) {
	t.Parallel()

	router, _, _ := newTutorRouter(&stubCompleter{reply: "ok"}, &domain.Learner{DisplayName: "Sam", Topic: "decimals"})

	rec := doJSON(t, router, http.MethodGet, "/api/tutor/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	view := decodeBody[SessionView](t, rec)
	if view.Topic != "decimals" || view.Pending {
		t.Errorf("unexpected session %+v", view)
	}
	if len(view.History) != 1 || view.History[0].Role != domain.RoleAssistant {
		t.Fatalf("expected greeting only, got %+v", view.History)
	}
	if !strings.HasPrefix(view.History[0].Content, "Hi Sam! 👋") || !strings.Contains(view.History[0].Content, "decimals") {
		t.Errorf("unexpected greeting %q", view.History[0].Content)
	}
	if len(view.QuickQuestions) != 5 || view.QuickQuestions[0] != "How do I compare fractions?" {
		t.Errorf("unexpected quick questions %v", view.QuickQuestions)
	}
}

func TestTutorMessageAppendsTurn(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{reply: "Line up the decimal points first."}
	router, _, log := newTutorRouter(completer, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "How do I add 0.5 and 0.25?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[TutorMessageResponse](t, rec)
	if resp.Reply.Content != "Line up the decimal points first." || resp.ErrorKind != "" {
		t.Errorf("unexpected reply %+v", resp)
	}
	hist := resp.Session.History
	if len(hist) != 3 || hist[1].Role != domain.RoleUser || hist[2].Role != domain.RoleAssistant {
		t.Fatalf("expected greeting, user, assistant; got %+v", hist)
	}
	if resp.Session.QuickQuestions != nil {
		t.Errorf("quick questions must go away after the first turn, got %v", resp.Session.QuickQuestions)
	}

	// The greeting is part of the history sent upstream; the system message is not stored.
	sent := completer.lastCall()
	if len(sent) != 3 || sent[0].Role != domain.RoleSystem || sent[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected upstream payload %+v", sent)
	}
	if len(log.events) != 2 {
		t.Errorf("expected two log events, got %d", len(log.events))
	}
}

func TestTutorMessageFailureReturnsFallback(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{err: &inference.ConfigurationError{Reason: inference.ReasonMissingCredential}}
	router, _, _ := newTutorRouter(completer, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "help"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[TutorMessageResponse](t, rec)
	if resp.Reply.Content != tutor.FallbackReply {
		t.Errorf("expected fallback, got %q", resp.Reply.Content)
	}
	if resp.ErrorKind != inference.ReasonMissingCredential {
		t.Errorf("unexpected error kind %q", resp.ErrorKind)
	}
	if n := len(resp.Session.History); n != 3 {
		t.Errorf("expected history to grow by two, got %d entries", n)
	}
}

func TestTutorMessageRejectsWhilePending(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{
		reply:   "done",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	router, _, _ := newTutorRouter(completer, nil)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "first"}`)
	}()

	select {
	case <-completer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never reached the completer")
	}

	rec := doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "second"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec)["error"]; got != "request_pending" {
		t.Errorf("unexpected error %q", got)
	}

	close(completer.release)
	if rec := <-first; rec.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}

	view := decodeBody[SessionView](t, doJSON(t, router, http.MethodGet, "/api/tutor/session", ""))
	if len(view.History) != 3 {
		t.Errorf("dropped request must not touch history, got %d entries", len(view.History))
	}
}

func TestTutorMessageRejectsBlank(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{reply: "ok"}
	router, _, _ := newTutorRouter(completer, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if completer.lastCall() != nil {
		t.Error("blank message must not reach the completer")
	}
}

func TestTutorSessionResetAndTopicSwitch(t *testing.T) {
	t.Parallel()

	router, sessions, _ := newTutorRouter(&stubCompleter{reply: "ok"}, nil)

	doJSON(t, router, http.MethodPost, "/api/tutor/messages", `{"message": "hi"}`)
	view := decodeBody[SessionView](t, doJSON(t, router, http.MethodGet, "/api/tutor/session", ""))
	if view.Topic != "fractions" || len(view.History) != 3 {
		t.Fatalf("unexpected session %+v", view)
	}

	view = decodeBody[SessionView](t, doJSON(t, router, http.MethodGet, "/api/tutor/session?topic=numbersense", ""))
	if view.Topic != "numbersense" || len(view.History) != 1 {
		t.Errorf("expected a fresh numbersense session, got %+v", view)
	}

	rec := doJSON(t, router, http.MethodDelete, "/api/tutor/session", "")
	if rec.Code != http.StatusOK || sessions.Len() != 0 {
		t.Errorf("expected session removed, code=%d len=%d", rec.Code, sessions.Len())
	}
}
