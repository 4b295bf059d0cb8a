package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/httputil"
	"github.com/enclave-chat/enclave-server/internal/keys"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// UserHandler serves the user directory endpoints.
type UserHandler struct {
	users user.Repository
	hub   Hub
	log   zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users user.Repository, hub Hub, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, hub: hub, log: logger}
}

// userResponse decorates a user record with live presence.
type userResponse struct {
	user.User
	Online bool `json:"online"`
}

// List handles GET /api/users. Every account is visible to every member;
// presence comes from the hub.
func (h *UserHandler) List(c fiber.Ctx) error {
	users, err := h.users.GetAll(c)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{User: u, Online: h.hub.IsOnline(u.ID)})
	}
	return httputil.Success(c, out)
}

// Me handles GET /api/users/me. The caller is by definition online.
func (h *UserHandler) Me(c fiber.Ctx) error {
	u, err := h.users.GetByID(c, auth.UserID(c))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, "user not found")
		}
		h.log.Error().Err(err).Msg("Failed to load current user")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	return httputil.Success(c, userResponse{User: *u, Online: true})
}

// UpdateKey handles POST /api/users/update-key.
func (h *UserHandler) UpdateKey(c fiber.Ctx) error {
	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	publicKey, err := keys.DecodeRequired(body.PublicKey)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "public_key must be base64")
	}

	if err := h.users.UpdatePublicKey(c, auth.UserID(c), publicKey); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, "user not found")
		}
		h.log.Error().Err(err).Msg("Failed to update public key")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	return httputil.Success(c, fiber.Map{"success": true})
}
