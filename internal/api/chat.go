package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/mathtutor/internal/chatlog"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/tutor"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatRequest is the body of POST /api/chat. The client owns the history.
type ChatRequest struct {
	Message             string           `json:"message"`
	ChapterID           string           `json:"chapterId"`
	StudentName         string           `json:"studentName"`
	ConversationHistory []domain.Message `json:"conversationHistory"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Message string           `json:"message"`
	Usage   *inference.Usage `json:"usage,omitempty"`
}

// ChatHandler serves the stateless chat turn endpoint.
type ChatHandler struct {
	completer   inference.Completer
	rateLimiter *RateLimiter
	log         chatlog.Logger
	maxBody     int64
}

// NewChatHandler creates a chat handler.
func NewChatHandler(completer inference.Completer, limiter *RateLimiter, log chatlog.Logger, maxBody int64) *ChatHandler {
	if log == nil {
		log = chatlog.Noop{}
	}
	return &ChatHandler{completer: completer, rateLimiter: limiter, log: log, maxBody: maxBody}
}

// RegisterRoutes registers the chat route.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
}

// HandleChat handles POST /api/chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	var req ChatRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow(userID) {
		slog.Warn("Rate limit exceeded", "user_id", userID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	topic, _ := domain.ParseTopic(req.ChapterID)
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		name = identity.LearnerFromContext(r.Context()).Name()
	}
	history := validMessages(req.ConversationHistory)
	reqID := chiMiddleware.GetReqID(r.Context())

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"topic", topic.ID(),
		"history_length", len(history),
		"message_length", len(req.Message),
	)
	h.log.Log(chatlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    chatlog.ChannelChat,
		Direction:  chatlog.DirectionOutbound,
		EventType:  chatlog.EventUserMessage,
		ContentRaw: req.Message,
		Meta:       map[string]any{"request_id": reqID, "topic": topic.ID()},
	})

	messages := tutor.BuildContext(topic, name, history, req.Message)
	res, err := h.completer.Complete(r.Context(), messages)
	if err != nil {
		status, msg := inferenceErrorStatus(err)
		slog.Error("Chat completion failed", "user_id", userID, "error_kind", inference.ErrorKind(err), "error", err)
		Error(w, status, msg)
		return
	}

	h.log.Log(chatlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    chatlog.ChannelChat,
		Direction:  chatlog.DirectionInbound,
		EventType:  chatlog.EventAssistantMessage,
		ContentRaw: res.Reply,
		Meta:       usageMeta(reqID, res.Usage),
	})
	JSON(w, http.StatusOK, ChatResponse{Message: res.Reply, Usage: res.Usage})
}

// validMessages drops entries with an unknown role.
func validMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for _, m := range in {
		if m.Role.Valid() {
			out = append(out, m)
		}
	}
	return out
}

// inferenceErrorStatus maps a gateway failure to an HTTP status and a
// client-facing message.
func inferenceErrorStatus(err error) (int, string) {
	var cfgErr *inference.ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.Reason == inference.ReasonMalformedCredential {
			return http.StatusInternalServerError, `Invalid OpenAI API key format. Key should start with "sk-"`
		}
		return http.StatusInternalServerError, "OpenAI API key not configured. Please set OPENAI_API_KEY."
	}
	var upErr *inference.UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.Kind {
		case inference.KindUnauthorized:
			return http.StatusUnauthorized, "Invalid OpenAI API key. Please check OPENAI_API_KEY."
		case inference.KindRateLimited:
			return http.StatusTooManyRequests, "Rate limit exceeded or no credits available. Please check your OpenAI account."
		}
		status := http.StatusBadGateway
		if upErr.StatusCode >= 400 && upErr.StatusCode < 600 {
			status = upErr.StatusCode
		}
		return status, upErr.Detail
	}
	return http.StatusInternalServerError, "Internal server error"
}

func usageMeta(reqID string, u *inference.Usage) map[string]any {
	meta := map[string]any{"request_id": reqID}
	if u != nil {
		meta["prompt_tokens"] = u.PromptTokens
		meta["completion_tokens"] = u.CompletionTokens
		meta["total_tokens"] = u.TotalTokens
	}
	return meta
}
