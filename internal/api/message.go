package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/gateway"
	"github.com/enclave-chat/enclave-server/internal/httputil"
	"github.com/enclave-chat/enclave-server/internal/keys"
	"github.com/enclave-chat/enclave-server/internal/message"
	"github.com/enclave-chat/enclave-server/internal/metrics"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// MessageHandler serves message history and delivery.
type MessageHandler struct {
	messages message.Repository
	users    user.Repository
	hub      Hub
	metrics  *metrics.Set
	log      zerolog.Logger
}

// NewMessageHandler creates a new message handler. met may be nil.
func NewMessageHandler(messages message.Repository, users user.Repository, hub Hub, met *metrics.Set, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, users: users, hub: hub, metrics: met, log: logger}
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	Nonce      string `json:"nonce"`
}

// List handles GET /api/messages/:otherID. As a side effect the caller's
// incoming messages from the peer are marked read, and an online peer is
// told via a read receipt.
func (h *MessageHandler) List(c fiber.Ctx) error {
	otherID, err := strconv.ParseInt(c.Params("otherID"), 10, 64)
	if err != nil || otherID < 1 {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid user id")
	}

	if _, err := h.users.GetByID(c, otherID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, "user not found")
		}
		h.log.Error().Err(err).Msg("Failed to look up peer")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	callerID := auth.UserID(c)
	msgs, err := h.messages.ListBetween(c, callerID, otherID, message.DefaultLimit, 0)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list messages")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	// Opening the conversation reads everything the peer sent. The receipt
	// only goes out when the mark succeeded and the peer can see it.
	if err := h.messages.MarkRead(c, otherID, callerID); err != nil {
		h.log.Warn().Err(err).Int64("from", otherID).Int64("to", callerID).
			Msg("Failed to mark messages read")
	} else if h.hub.IsOnline(otherID) {
		h.hub.SendMessage(otherID, gateway.NewReadReceiptEnvelope(callerID, otherID))
	}

	return httputil.Success(c, msgs)
}

// Send handles POST /api/messages. The message is persisted first; realtime
// delivery is best-effort and never fails the request.
func (h *MessageHandler) Send(c fiber.Ctx) error {
	var body sendMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if body.ReceiverID == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, "receiver_id is required")
	}

	content, err := keys.DecodeRequired(body.Content)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "content must be base64")
	}
	nonce, err := keys.DecodeRequired(body.Nonce)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "nonce must be base64")
	}

	if _, err := h.users.GetByID(c, body.ReceiverID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, "user not found")
		}
		h.log.Error().Err(err).Msg("Failed to look up receiver")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	msg, err := h.messages.Save(c, message.SaveParams{
		SenderID:   auth.UserID(c),
		ReceiverID: body.ReceiverID,
		Type:       body.Type,
		Content:    content,
		Nonce:      nonce,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to save message")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	if h.metrics != nil {
		h.metrics.MessagesPersisted.Inc()
	}

	if h.hub.IsOnline(msg.ReceiverID) {
		h.hub.SendMessage(msg.ReceiverID, gateway.NewMessageEnvelope(msg))
	}

	return httputil.Success(c, msg)
}

// Clear handles POST /api/messages/clear. Both directions of the
// conversation are removed; the peer is told so open clients drop their
// local copies.
func (h *MessageHandler) Clear(c fiber.Ctx) error {
	var body struct {
		OtherUserID int64 `json:"other_user_id"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if body.OtherUserID == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, "other_user_id is required")
	}

	callerID := auth.UserID(c)
	if err := h.messages.DeleteBetween(c, callerID, body.OtherUserID); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear messages")
		return httputil.Fail(c, fiber.StatusInternalServerError, "internal server error")
	}

	if h.hub.IsOnline(body.OtherUserID) {
		h.hub.SendMessage(body.OtherUserID, gateway.NewClearMessagesEnvelope(callerID, body.OtherUserID))
	}

	return httputil.Success(c, fiber.Map{"success": true})
}
