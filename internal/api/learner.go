package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxLearnerNameLength = 50

// LearnerView is the wire form of the learner profile.
type LearnerView struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Topic  string   `json:"topic"`
	Topics []string `json:"topics"`
}

// UpdateLearnerRequest is the body of PUT /api/me.
type UpdateLearnerRequest struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

// LearnerHandler serves the learner profile.
type LearnerHandler struct {
	repo    store.Repository
	maxBody int64
}

// NewLearnerHandler creates a learner handler.
func NewLearnerHandler(repo store.Repository, maxBody int64) *LearnerHandler {
	return &LearnerHandler{repo: repo, maxBody: maxBody}
}

// RegisterRoutes registers learner routes.
func (h *LearnerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Put("/api/me", h.UpdateMe)
}

func learnerView(userID string, l *domain.Learner) LearnerView {
	topics := make([]string, 0, len(domain.Topics))
	for _, t := range domain.Topics {
		topics = append(topics, t.ID())
	}
	return LearnerView{
		UserID: userID,
		Name:   l.Name(),
		Topic:  l.PreferredTopic().ID(),
		Topics: topics,
	}
}

// GetMe handles GET /api/me.
func (h *LearnerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, learnerView(userID, identity.LearnerFromContext(r.Context())))
}

// UpdateMe handles PUT /api/me.
func (h *LearnerHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateLearnerRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > maxLearnerNameLength {
		Error(w, http.StatusBadRequest, "name is too long")
		return
	}
	topicID := ""
	if strings.TrimSpace(req.Topic) != "" {
		topic, ok := domain.ParseTopic(req.Topic)
		if !ok {
			Error(w, http.StatusBadRequest, "unknown topic")
			return
		}
		topicID = topic.ID()
	}

	if err := h.repo.UpdateProfile(r.Context(), userID, name, topicID); err != nil {
		if errors.Is(err, store.ErrLearnerNotFound) {
			Error(w, http.StatusNotFound, "learner not found")
			return
		}
		slog.Error("Failed to update learner profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	l := &domain.Learner{UserID: userID, DisplayName: name, Topic: topicID}
	slog.Info("Learner profile updated", "user_id", userID, "topic", l.PreferredTopic().ID())
	JSON(w, http.StatusOK, learnerView(userID, l))
}
