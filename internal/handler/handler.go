package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/session"
)

// ParamExtractor reads assessment parameters from a user message.
type ParamExtractor interface {
	Extract(ctx context.Context, message string) model.ExtractionResult
}

// AssessmentService generates and modifies assessments.
type AssessmentService interface {
	Generate(ctx context.Context, params model.AssessmentParams) (model.Assessment, error)
	Modify(ctx context.Context, assessmentID string, original model.Assessment, modifications map[string]any) (model.Assessment, error)
}

const writeWait = 10 * time.Second

// Handler binds the conversation logic to WebSocket connections.
type Handler struct {
	sessions  *session.Store
	extractor ParamExtractor
	assessor  AssessmentService
	config    model.ServerConfig
	upgrader  websocket.Upgrader
}

// New creates a new Handler.
func New(sessions *session.Store, ex ParamExtractor, as AssessmentService, cfg model.ServerConfig) *Handler {
	h := &Handler{
		sessions:  sessions,
		extractor: ex,
		assessor:  as,
		config:    cfg,
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// Routes registers all HTTP routes under the configured base path.
func (h *Handler) Routes(r chi.Router) {
	if h.config.BasePath == "" {
		r.Group(h.routes)
		return
	}
	r.Route(h.config.BasePath, h.routes)
}

func (h *Handler) routes(r chi.Router) {
	r.Use(appI18n.Middleware(h.config.DefaultLang))
	r.Get("/health", h.handleHealth)
	r.With(h.requireAccessKey).Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 || slices.Contains(h.config.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.config.AllowedOrigins, origin) {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "remote", r.RemoteAddr)
	return false
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.NewString(), ws)
	h.sessions.Open(c.id)
	slog.Info("client connected", "conn", c.id, "remote", r.RemoteAddr, "sessions", h.sessions.Len())

	defer func() {
		h.sessions.Delete(c.id)
		c.close()
		slog.Info("client disconnected", "conn", c.id, "sessions", h.sessions.Len())
	}()

	ctx := model.ContextWithConnectionID(r.Context(), c.id)
	h.serve(ctx, c)
}

// serve runs the read loop. Each event is handled to completion before the
// next frame is read, so events of one connection never interleave.
func (h *Handler) serve(ctx context.Context, c *conn) {
	if h.config.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(h.config.MaxMessageBytes)
	}
	if h.config.PongWait > 0 {
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
		})
		stop := c.keepalive(h.config.PongWait * 9 / 10)
		defer stop()
	}

	for {
		if h.config.PongWait > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
		}
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("websocket read failed", "conn", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			h.emitError(ctx, c, "UnsupportedEvent", errBinaryFrame)
			continue
		}

		var env inbound
		if err := json.Unmarshal(data, &env); err != nil {
			h.emitError(ctx, c, "UnsupportedEvent", err)
			continue
		}
		h.dispatch(ctx, c, env)
	}
}
