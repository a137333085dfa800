package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/handlers"
	"github.com/anjiri1684/tutor_marketplace/middleware"
)

func AdminRoutes(api fiber.Router, h *handlers.Handler, protected fiber.Handler) {
	admin := api.Group("/admin", protected, middleware.AdminRequired())

	admin.Get("/applications", h.GetApplications)
	admin.Put("/applications/:teacherId", h.DecideApplication)
	admin.Post("/teachers/:teacherId/suspend", h.SuspendTeacher)

	admin.Get("/payout-requests", h.GetPayoutRequests)
	admin.Put("/payout-requests/:payoutId", h.ReviewPayout)
	admin.Post("/payout-requests/:payoutId/complete", h.CompletePayout)

	admin.Post("/users/:userId/wallet/top-up", h.TopUpWallet)
}
