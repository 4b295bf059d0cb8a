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

// AuthHandler serves registration, login, and invite validation.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(svc *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, log: logger}
}

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
	PublicKey  string `json:"public_key"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body registerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	publicKey, err := keys.DecodeRequired(body.PublicKey)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "public_key must be base64")
	}

	result, err := h.auth.Register(c, auth.RegisterRequest{
		Username:   body.Username,
		Password:   body.Password,
		PublicKey:  publicKey,
		InviteCode: body.InviteCode,
	})
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return httputil.Success(c, authResponse{
		Token: result.Token,
		User:  result.User,
	})
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.Login(c, auth.LoginRequest{
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return httputil.Success(c, authResponse{
		Token: result.Token,
		User:  result.User,
	})
}

// ValidateInvite handles POST /api/invite/validate.
func (h *AuthHandler) ValidateInvite(c fiber.Ctx) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if body.Code == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, "code is required")
	}

	valid, err := h.auth.ValidateInvite(c, body.Code)
	if err != nil {
		h.log.Error().Err(err).Msg("Invite validation failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	if !valid {
		return httputil.Fail(c, fiber.StatusBadRequest, auth.ErrInviteInvalid.Error())
	}

	return httputil.Success(c, fiber.Map{"valid": true})
}

// mapAuthError converts auth-layer errors to HTTP responses.
func (h *AuthHandler) mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrUsernameLength),
		errors.Is(err, auth.ErrUsernameInvalidChars),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrInviteRequired),
		errors.Is(err, auth.ErrInviteInvalid),
		errors.Is(err, user.ErrUsernameTaken):
		return httputil.Fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, err.Error())
	default:
		h.log.Error().Err(err).Msg("Auth request failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}
}
