//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/chatlog"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/go-chi/chi/v5"
)

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   [][]domain.Message
	started chan struct{}
	release chan struct{}
}

func (s *stubCompleter) Complete(_ context.Context, messages []domain.Message) (*inference.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, messages)
	started, release := s.started, s.release
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &inference.Result{
		Reply: s.reply,
		Usage: &inference.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *stubCompleter) lastCall() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

type recordingLog struct {
	mu     sync.Mutex
	events []chatlog.Event
}

func (l *recordingLog) Log(ev chatlog.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingLog) Close() error { return nil }

func (l *recordingLog) ofType(eventType string) []chatlog.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []chatlog.Event
	for _, ev := range l.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakeRepo struct {
	mu       sync.Mutex
	learners map[string]*domain.Learner
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{learners: make(map[string]*domain.Learner)}
}

func (f *fakeRepo) GetLearner(_ context.Context, userID string) (*domain.Learner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.learners[userID]
	if l == nil {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeRepo) UpsertLearner(_ context.Context, l *domain.Learner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.learners[l.UserID]; !ok {
		cp := *l
		f.learners[l.UserID] = &cp
	}
	return nil
}

func (f *fakeRepo) UpdateProfile(_ context.Context, userID, name, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.learners[userID]
	if l == nil {
		return store.ErrLearnerNotFound
	}
	l.DisplayName = name
	l.Topic = topic
	return nil
}

func (f *fakeRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }
func (f *fakeRepo) Ping(context.Context) error                             { return f.pingErr }
func (f *fakeRepo) Close() error                                           { return nil }

// withIdentity injects a fixed identity, standing in for identity.Middleware.
func withIdentity(userID, sessionID string, learner *domain.Learner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := userID
			if h := r.Header.Get("X-Test-User"); h != "" {
				uid = h
			}
			ctx := identity.WithIdentity(r.Context(), uid, sessionID, learner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func newTestRouter(h routeRegistrar, userID string, learner *domain.Learner) *chi.Mux {
	r := chi.NewRouter()
	r.Use(withIdentity(userID, "tab-1", learner))
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSONAs(t *testing.T, h http.Handler, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", userID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}
