package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/mathtutor/internal/chatlog"
	"github.com/ashureev/mathtutor/internal/hint"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/go-chi/chi/v5"
)

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	Correct     bool     `json:"correct"`
	Hints       []string `json:"hints"`
	Steps       []string `json:"steps"`
	Explanation string   `json:"explanation"`
	Concept     string   `json:"concept"`
	ProblemType string   `json:"problemType"`
}

// FeedbackResponse carries the event ID and its render state.
type FeedbackResponse struct {
	ID       string     `json:"id"`
	Accepted *bool      `json:"accepted,omitempty"`
	State    hint.State `json:"state"`
}

// FeedbackHandler serves answer-check feedback events and their hint reveals.
type FeedbackHandler struct {
	engines *hint.Registry
	log     chatlog.Logger
	maxBody int64
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(engines *hint.Registry, log chatlog.Logger, maxBody int64) *FeedbackHandler {
	if log == nil {
		log = chatlog.Noop{}
	}
	return &FeedbackHandler{engines: engines, log: log, maxBody: maxBody}
}

// RegisterRoutes registers feedback routes.
func (h *FeedbackHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/feedback", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Dismiss)
			r.Post("/advance", h.reveal((*hint.Engine).Advance))
			r.Post("/solution", h.reveal((*hint.Engine).RevealSolution))
			r.Post("/explanation", h.reveal((*hint.Engine).RevealExplanation))
		})
	})
}

// usageObserver forwards hint usage to the conversation log.
func (h *FeedbackHandler) usageObserver(userID, sessionID, feedbackID string) hint.UsageObserver {
	return func(u hint.Usage) {
		h.log.Log(chatlog.Event{
			UserID:    userID,
			SessionID: sessionID,
			Channel:   chatlog.ChannelFeedback,
			EventType: chatlog.EventHintUsed,
			Meta: map[string]any{
				"feedback_id": feedbackID,
				"concept":     u.Concept,
				"kind":        string(u.Kind),
				"level":       u.Level,
			},
		})
	}
}

// Create handles POST /api/feedback.
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	var req FeedbackRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	fb := hint.Feedback{
		Outcome:     hint.Incorrect,
		Hints:       nonBlank(req.Hints),
		Steps:       nonBlank(req.Steps),
		Explanation: strings.TrimSpace(req.Explanation),
		Concept:     strings.TrimSpace(req.Concept),
	}
	if req.Correct {
		fb.Outcome = hint.Correct
	}
	if fb.Outcome == hint.Incorrect && len(fb.Hints) == 0 && req.ProblemType != "" {
		fb.Hints = hint.Templates(hint.ProblemType(req.ProblemType))
	}

	id, e := h.engines.Create(userID, fb, func(id string) hint.UsageObserver {
		return h.usageObserver(userID, sessionID, id)
	})

	slog.Info("Feedback created",
		"user_id", userID,
		"feedback_id", id,
		"outcome", fb.Outcome.String(),
		"hints", len(fb.Hints),
		"steps", len(fb.Steps),
	)
	JSON(w, http.StatusCreated, FeedbackResponse{ID: id, State: e.State()})
}

// Get handles GET /api/feedback/{id}.
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.engines.Get(identity.UserIDFromContext(r.Context()), id)
	if !ok {
		Error(w, http.StatusNotFound, "feedback not found")
		return
	}
	JSON(w, http.StatusOK, FeedbackResponse{ID: id, State: e.State()})
}

// Dismiss handles DELETE /api/feedback/{id}.
func (h *FeedbackHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.engines.Dismiss(identity.UserIDFromContext(r.Context()), id) {
		Error(w, http.StatusNotFound, "feedback not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// reveal adapts an engine operation to a handler. Refused operations are
// no-ops and still return 200 with accepted=false.
func (h *FeedbackHandler) reveal(op func(*hint.Engine) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e, ok := h.engines.Get(identity.UserIDFromContext(r.Context()), id)
		if !ok {
			Error(w, http.StatusNotFound, "feedback not found")
			return
		}
		accepted := op(e)
		JSON(w, http.StatusOK, FeedbackResponse{ID: id, Accepted: &accepted, State: e.State()})
	}
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
