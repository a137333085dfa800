package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/handlers"
)

// PaymentRoutes is unauthenticated; the webhook checks its shared secret.
func PaymentRoutes(api fiber.Router, h *handlers.Handler) {
	api.Post("/payments/webhook", h.HandlePaymentWebhook)
}
