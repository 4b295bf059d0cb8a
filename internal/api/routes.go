package api

import (
	"database/sql"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/config"
	"github.com/enclave-chat/enclave-server/internal/gateway"
	"github.com/enclave-chat/enclave-server/internal/invite"
	"github.com/enclave-chat/enclave-server/internal/message"
	"github.com/enclave-chat/enclave-server/internal/metrics"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// Hub is the realtime delivery surface the REST handlers need. It is
// satisfied by *gateway.Hub.
type Hub interface {
	IsOnline(userID int64) bool
	SendMessage(to int64, env gateway.Envelope)
}

// Deps carries everything the HTTP surface needs. Metrics and DB may be nil
// in tests.
type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	Users    user.Repository
	Messages message.Repository
	Invites  invite.Repository
	Auth     *auth.Service
	Hub      Hub
	// GatewayHub backs the WebSocket upgrade route; nil skips it.
	GatewayHub *gateway.Hub
	Metrics    *metrics.Set
	Log        zerolog.Logger
}

// Register mounts all routes under /api. Everything behind the invite gate
// requires a valid session token; the WebSocket upgrade authenticates via
// the token query parameter handled by the same middleware.
func Register(app *fiber.App, d Deps) {
	authHandler := NewAuthHandler(d.Auth, d.Log)
	userHandler := NewUserHandler(d.Users, d.Hub, d.Log)
	messageHandler := NewMessageHandler(d.Messages, d.Users, d.Hub, d.Metrics, d.Log)
	inviteHandler := NewInviteHandler(d.Invites, d.Log)

	api := app.Group("/api")

	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/invite/validate", authHandler.ValidateInvite)
	if d.DB != nil {
		healthHandler := &HealthHandler{DB: d.DB}
		api.Get("/health", healthHandler.Health)
	}

	api.Use(auth.RequireAuth(d.Config.JWTSecret))

	api.Get("/users", userHandler.List)
	api.Get("/users/me", userHandler.Me)
	api.Post("/users/update-key", userHandler.UpdateKey)

	api.Get("/messages/:otherID", messageHandler.List)
	api.Post("/messages", messageHandler.Send)
	api.Post("/messages/clear", messageHandler.Clear)

	api.Post("/invites", inviteHandler.Create)

	if d.GatewayHub != nil {
		api.Get("/ws", NewGatewayHandler(d.GatewayHub).Upgrade)
	}
}
