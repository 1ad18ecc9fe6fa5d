package handler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/queue"
	"go.uber.org/zap"
)

// ReceiptHandler accepts provider delivery receipts and feeds them onto the
// receipts lane. Receipts are acknowledged as soon as they are durable in
// Redis; reconciliation happens out of band.
type ReceiptHandler struct {
	lanes  *queue.Lanes
	logger *zap.Logger
}

func NewReceiptHandler(lanes *queue.Lanes, logger *zap.Logger) (*ReceiptHandler, error) {
	if lanes == nil {
		return nil, fmt.Errorf("lanes are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptHandler{lanes: lanes, logger: logger}, nil
}

func RegisterReceiptRoutes(router fiber.Router, lanes *queue.Lanes, logger *zap.Logger) error {
	h, err := NewReceiptHandler(lanes, logger)
	if err != nil {
		return err
	}

	callbacks := router.Group("/callbacks")
	callbacks.Post("/pinpoint", h.HandleReceipt(domain.ProviderPinpoint))
	callbacks.Post("/sns", h.HandleReceipt(domain.ProviderSNS))
	callbacks.Post("/ses", h.HandleReceipt(domain.ProviderSES))

	return nil
}

// snsEnvelope is the wrapper AWS SNS puts around HTTPS-delivered messages.
// The receipt itself arrives JSON-encoded in Message.
type snsEnvelope struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

func (h *ReceiptHandler) HandleReceipt(provider domain.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, envelopeType := unwrapSNSEnvelope(c.Body())

		switch envelopeType {
		case "SubscriptionConfirmation":
			// Confirmation is done out of band by the operator.
			h.logger.Warn("received sns subscription confirmation",
				zap.String("provider", provider.String()),
			)
			return c.SendStatus(fiber.StatusOK)
		case "UnsubscribeConfirmation":
			h.logger.Warn("received sns unsubscribe confirmation",
				zap.String("provider", provider.String()),
			)
			return c.SendStatus(fiber.StatusOK)
		}

		msg := queue.ReceiptMessage{
			Provider: provider,
			Body:     body,
		}
		if err := msg.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := h.lanes.Publish(c.Context(), queue.LaneReceipts, msg); err != nil {
			h.logger.Error("failed to enqueue receipt",
				zap.String("provider", provider.String()),
				zap.Error(err),
			)
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to enqueue receipt")
		}

		return c.SendStatus(fiber.StatusOK)
	}
}

// unwrapSNSEnvelope returns the inner receipt body and the envelope type, or
// the raw body unchanged when the payload is not an SNS envelope.
func unwrapSNSEnvelope(raw []byte) (json.RawMessage, string) {
	var envelope snsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw, ""
	}
	if envelope.Type == "" {
		return raw, ""
	}
	if strings.TrimSpace(envelope.Message) == "" {
		return raw, envelope.Type
	}
	return json.RawMessage(envelope.Message), envelope.Type
}
