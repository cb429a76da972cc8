package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/speech"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// speechWriteTimeout bounds a single websocket state push.
const speechWriteTimeout = 5 * time.Second

// SpeakRequest is the body of POST /api/speech/speak.
type SpeakRequest struct {
	Text      string  `json:"text"`
	StartFrom string  `json:"startFrom"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
}

// SpeechHandler exposes the shared read-aloud controller.
type SpeechHandler struct {
	ctrl          *speech.Controller
	maxBody       int64
	allowedOrigin string
	isDev         bool
}

// NewSpeechHandler creates a speech handler. allowedOrigin "*" or "" accepts
// any websocket origin.
func NewSpeechHandler(ctrl *speech.Controller, maxBody int64, allowedOrigin string, isDev bool) *SpeechHandler {
	return &SpeechHandler{ctrl: ctrl, maxBody: maxBody, allowedOrigin: allowedOrigin, isDev: isDev}
}

// RegisterRoutes registers speech routes.
func (h *SpeechHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/speech", func(r chi.Router) {
		r.Get("/", h.State)
		r.Post("/speak", h.Speak)
		r.Post("/pause", h.control(h.ctrl.Pause))
		r.Post("/resume", h.control(h.ctrl.Resume))
		r.Post("/stop", h.control(h.ctrl.Stop))
	})
	r.Get("/ws/speech", h.Stream)
}

// State handles GET /api/speech.
func (h *SpeechHandler) State(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.ctrl.State())
}

// Speak handles POST /api/speech/speak. An unavailable device is reported in
// the returned state, not as an error.
func (h *SpeechHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	id := h.ctrl.Speak(req.Text, speech.Options{
		StartFrom: req.StartFrom,
		Rate:      req.Rate,
		Pitch:     req.Pitch,
	})
	if id != "" {
		slog.Info("Speech requested", "user_id", identity.UserIDFromContext(r.Context()), "utterance_id", id)
	}
	JSON(w, http.StatusOK, h.ctrl.State())
}

func (h *SpeechHandler) control(op func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		op()
		JSON(w, http.StatusOK, h.ctrl.State())
	}
}

func (h *SpeechHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// Stream handles GET /ws/speech, pushing every playback state change as JSON.
func (h *SpeechHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// The client never sends; CloseRead cancels ctx when it disconnects.
	ctx := ws.CloseRead(r.Context())

	states, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Speech stream closed", "user_id", userID)
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := h.push(ctx, ws, st); err != nil {
				slog.Debug("Speech stream write failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func (h *SpeechHandler) push(ctx context.Context, ws *websocket.Conn, st speech.State) error {
	ctx, cancel := context.WithTimeout(ctx, speechWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, st)
}
