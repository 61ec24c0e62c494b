package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"clubing-chat/internal/middleware"
	"clubing-chat/internal/observability"
	ws "clubing-chat/internal/websocket"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WebSocketHandler upgrades authenticated requests to chat connections.
type WebSocketHandler struct {
	ctx       context.Context
	hub       *ws.Hub
	verifier  middleware.TokenVerifier
	opts      ws.ClientOptions
	addresses *ws.AddressBook
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates a handler whose connections live until ctx
// is cancelled or the peer disconnects.
func NewWebSocketHandler(ctx context.Context, hub *ws.Hub, verifier middleware.TokenVerifier, opts ws.ClientOptions, addresses *ws.AddressBook, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:       ctx,
		hub:       hub,
		verifier:  verifier,
		opts:      opts,
		addresses: addresses,
		upgrader:  createUpgrader(allowedOrigins),
	}
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	wildcard := lo.Contains(allowedOrigins, "*")
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" || wildcard {
				return true
			}
			return lo.Contains(allowedOrigins, origin)
		},
	}
}

// HandleConnection authenticates, upgrades and starts the client pumps.
// Auth is checked here rather than by middleware so the token may arrive
// as a query parameter.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No access token provided")
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	addr := remoteHost(r)
	h.addresses.Record(identity.MemberID, addr)

	ctx := middleware.WithIdentity(h.ctx, *identity)
	client := ws.NewClient(ctx, h.hub, conn, *identity, h.opts)
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	observability.FromContext(ctx).Debug("websocket connected",
		slog.String("conn_id", client.ID()),
		slog.String("remote_addr", addr),
		slog.Any("recent_addrs", h.addresses.Recent(identity.MemberID)))

	go client.WritePump()
	go client.ReadPump()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
