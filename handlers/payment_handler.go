package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/services"
)

const webhookSecretHeader = "X-Webhook-Secret"

type PaymentWebhookPayload struct {
	BookingID   string `json:"booking_id" validate:"required,uuid"`
	Outcome     string `json:"outcome" validate:"required,oneof=succeeded failed"`
	ProviderRef string `json:"provider_ref" validate:"max=255"`
}

// HandlePaymentWebhook applies a provider callback to the booking it pays
// for. Redelivered callbacks are acknowledged without side effects.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	secret := c.Get(webhookSecretHeader)
	if h.opts.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.WebhookSecret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid webhook signature")
	}

	var payload PaymentWebhookPayload
	if err := parse(c, &payload); err != nil {
		return err
	}
	bookingID, err := parseUUID(payload.BookingID, "booking_id")
	if err != nil {
		return err
	}

	h.logger.Info("payment webhook received",
		zap.String("booking_id", bookingID.String()),
		zap.String("outcome", payload.Outcome),
		zap.String("provider_ref", payload.ProviderRef))

	booking, err := h.bookings.HandlePaymentResult(c.UserContext(), bookingID, services.ChargeStatus(payload.Outcome), payload.ProviderRef)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, booking)
}
