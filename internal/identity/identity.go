// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/store"
)

const (
	AnonCookieName        = "mathtutor_anon_id"
	SessionHeaderName     = "X-Tutor-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	learnerKey
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// LearnerFromContext returns the learner loaded by Middleware, or nil.
func LearnerFromContext(ctx context.Context) *domain.Learner {
	l, _ := ctx.Value(learnerKey).(*domain.Learner)
	return l
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithIdentity returns ctx carrying the given identity. Used by tests and
// by callers that establish identity out of band.
func WithIdentity(ctx context.Context, userID, sessionID string, learner *domain.Learner) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
	if learner != nil {
		ctx = context.WithValue(ctx, learnerKey, learner)
	}
	return ctx
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// lastSeenRefresh limits last_seen_at writes for a returning learner.
const lastSeenRefresh = time.Minute

// ensureLearner loads the learner, creating an empty profile on first visit.
func ensureLearner(ctx context.Context, repo store.Repository, userID string) (*domain.Learner, error) {
	learner, err := repo.GetLearner(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if learner != nil {
		if now.Sub(learner.LastSeenAt) >= lastSeenRefresh {
			if err := repo.UpdateLastSeen(ctx, userID, now); err != nil {
				slog.Warn("Failed to update last seen", "user_id", userID, "error", err)
			} else {
				learner.LastSeenAt = now
			}
		}
		return learner, nil
	}

	learner = &domain.Learner{
		UserID:     userID,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertLearner(ctx, learner); err != nil {
		return nil, err
	}
	slog.Info("New learner", "user_id", userID)
	return learner, nil
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects anonymous per-device identity, the learner profile and
// the per-tab session ID.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			learner, err := ensureLearner(r.Context(), repo, userID)
			if err != nil {
				slog.Error("Failed to load learner", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize learner"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), userID, sessionIDFromRequest(r), learner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
