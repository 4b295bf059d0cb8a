package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/httputil"
	"github.com/enclave-chat/enclave-server/internal/invite"
)

// InviteHandler serves invite creation.
type InviteHandler struct {
	invites invite.Repository
	log     zerolog.Logger
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(invites invite.Repository, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{invites: invites, log: logger}
}

// Create handles POST /api/invites. Any member can mint codes; the invite
// gate only controls who gets in, not who invites.
func (h *InviteHandler) Create(c fiber.Ctx) error {
	inv, err := h.invites.Create(c)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create invite")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	return httputil.Success(c, fiber.Map{"code": inv.Code})
}
