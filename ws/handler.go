package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"

	"github.com/gorilla/websocket"
)

// Options carries the live-layer tuning knobs from configuration.
type Options struct {
	BufferSize     int
	SendRate       float64
	SendBurst      int
	AllowedOrigins []string
}

// Handler upgrades GET /ws requests. Authentication happens before the
// upgrade: browsers cannot set headers on websocket dials, so the token is
// also accepted as a query parameter.
type Handler struct {
	coordinator contract.ICoordinator
	tokens      *auth.TokenManager
	log         *slog.Logger
	opts        Options
	upgrader    websocket.Upgrader
}

func NewHandler(coordinator contract.ICoordinator, tokens *auth.TokenManager, log *slog.Logger, opts Options) *Handler {
	h := &Handler{
		coordinator: coordinator,
		tokens:      tokens,
		log:         log,
		opts:        opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(r)
	if !ok {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, userID, h.coordinator, h.log, h.opts.BufferSize, h.opts.SendRate, h.opts.SendBurst)
	if err := h.coordinator.Connect(client.ID(), userID, client); err != nil {
		h.log.Error("registering connection", "error", err)
		_ = client.Close()
		return
	}

	h.log.Info("connection opened", "connection_id", client.ID(), "user_id", userID)
	client.Run(r.Context())
	h.log.Info("connection closed", "connection_id", client.ID(), "user_id", userID)
}

func (h *Handler) authenticate(r *http.Request) (domain.UserID, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}
	}
	if token == "" {
		return "", false
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.log.Debug("rejecting websocket token", "error", err)
		return "", false
	}
	return domain.UserID(claims.UserID), true
}

// checkOrigin allows same-host requests plus the configured origin list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), parsed.Scheme+"://"+parsed.Host) {
			return true
		}
	}
	h.log.Warn("blocked websocket origin", "origin", origin)
	return false
}
