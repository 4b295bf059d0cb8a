package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/gateway"
)

// GatewayHandler serves the WebSocket upgrade endpoint.
type GatewayHandler struct {
	hub *gateway.Hub
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(hub *gateway.Hub) *GatewayHandler {
	return &GatewayHandler{hub: hub}
}

// Upgrade handles GET /api/ws. Authentication already ran in middleware; the
// identity is captured here because Locals are not available inside the
// websocket goroutine.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := auth.UserID(c)
	username := auth.Username(c)

	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn, userID, username)
	})(c)
}
