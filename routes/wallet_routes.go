package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/handlers"
)

func WalletRoutes(api fiber.Router, h *handlers.Handler, protected fiber.Handler) {
	wallet := api.Group("/wallet", protected)
	wallet.Get("", h.GetWallet)
	wallet.Get("/entries", h.GetWalletEntries)
}
