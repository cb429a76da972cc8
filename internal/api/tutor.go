package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mathtutor/internal/chatlog"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/tutor"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// SessionView is the wire form of a tutor session. QuickQuestions is set
// only while the greeting is the sole message.
type SessionView struct {
	Topic          string           `json:"topic"`
	Pending        bool             `json:"pending"`
	History        []domain.Message `json:"history"`
	QuickQuestions []string         `json:"quick_questions,omitempty"`
}

// TutorMessageRequest is the body of POST /api/tutor/messages.
type TutorMessageRequest struct {
	Message string `json:"message"`
	Topic   string `json:"topic,omitempty"`
}

// TutorMessageResponse is returned for every accepted turn.
type TutorMessageResponse struct {
	Reply     domain.Message   `json:"reply"`
	Usage     *inference.Usage `json:"usage,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Session   SessionView      `json:"session"`
}

// TutorHandler serves server-held tutor sessions, one per learner tab.
type TutorHandler struct {
	completer   inference.Completer
	sessions    *tutor.Registry
	rateLimiter *RateLimiter
	log         chatlog.Logger
	maxBody     int64
}

// NewTutorHandler creates a tutor session handler.
func NewTutorHandler(completer inference.Completer, sessions *tutor.Registry, limiter *RateLimiter, log chatlog.Logger, maxBody int64) *TutorHandler {
	if log == nil {
		log = chatlog.Noop{}
	}
	return &TutorHandler{
		completer:   completer,
		sessions:    sessions,
		rateLimiter: limiter,
		log:         log,
		maxBody:     maxBody,
	}
}

// RegisterRoutes registers tutor session routes.
func (h *TutorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tutor", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.ResetSession)
		r.Post("/messages", h.PostMessage)
	})
}

// session returns the tab's session, replacing it when a different known
// topic is requested.
func (h *TutorHandler) session(r *http.Request, topicID string) *tutor.Session {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	learner := identity.LearnerFromContext(r.Context())

	topic := learner.PreferredTopic()
	requested, known := domain.ParseTopic(topicID)
	if known {
		topic = requested
	}

	if known {
		if s := h.sessions.Get(userID, sessionID); s != nil && s.Topic() != topic {
			slog.Info("Tutor topic changed, starting new session",
				"user_id", userID, "session_id", sessionID, "from", s.Topic().ID(), "to", topic.ID())
			h.sessions.Remove(userID, sessionID)
		}
	}

	return h.sessions.GetOrCreate(userID, sessionID, func() *tutor.Session {
		return tutor.NewSession(h.completer, topic, learner.Name(), tutor.WithGreeting())
	})
}

func viewOf(s *tutor.Session) SessionView {
	view := SessionView{Topic: s.Topic().ID(), Pending: s.Pending(), History: s.History()}
	if len(view.History) == 1 {
		view.QuickQuestions = tutor.QuickQuestions()
	}
	return view
}

// GetSession handles GET /api/tutor/session.
func (h *TutorHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := h.session(r, r.URL.Query().Get("topic"))
	JSON(w, http.StatusOK, viewOf(s))
}

// ResetSession handles DELETE /api/tutor/session.
func (h *TutorHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.sessions.Remove(userID, sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// PostMessage handles POST /api/tutor/messages.
func (h *TutorHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	var req TutorMessageRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if domain.IsBlank(req.Message) {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	s := h.session(r, req.Topic)
	if s.Pending() {
		Error(w, http.StatusConflict, "request_pending")
		return
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow(userID) {
		slog.Warn("Rate limit exceeded", "user_id", userID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	h.log.Log(chatlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    chatlog.ChannelTutor,
		Direction:  chatlog.DirectionOutbound,
		EventType:  chatlog.EventUserMessage,
		ContentRaw: req.Message,
		Meta:       map[string]any{"request_id": reqID, "topic": s.Topic().ID()},
	})

	turn, err := s.Submit(r.Context(), req.Message)
	switch {
	case errors.Is(err, tutor.ErrBusy):
		Error(w, http.StatusConflict, "request_pending")
		return
	case errors.Is(err, tutor.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		slog.Error("Tutor turn failed", "user_id", userID, "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := TutorMessageResponse{Reply: turn.Reply, Usage: turn.Usage, Session: viewOf(s)}
	meta := usageMeta(reqID, turn.Usage)
	if turn.Failed() {
		resp.ErrorKind = inference.ErrorKind(turn.Err)
		if resp.ErrorKind == "" {
			resp.ErrorKind = inference.KindUpstreamFailure
		}
		meta["error_kind"] = resp.ErrorKind
		slog.Warn("Tutor turn fell back",
			"user_id", userID, "session_id", sessionID, "error_kind", resp.ErrorKind, "error", turn.Err)
	}

	h.log.Log(chatlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    chatlog.ChannelTutor,
		Direction:  chatlog.DirectionInbound,
		EventType:  chatlog.EventAssistantMessage,
		ContentRaw: turn.Reply.Content,
		Meta:       meta,
	})
	JSON(w, http.StatusOK, resp)
}
