package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/handlers"
	"github.com/anjiri1684/tutor_marketplace/middleware"
)

func BookingRoutes(api fiber.Router, h *handlers.Handler, protected fiber.Handler) {
	booking := api.Group("/bookings", protected)
	booking.Post("", middleware.StudentRequired(), h.CreateBooking)
	booking.Get("/me", h.GetMyBookings)
	booking.Get("/:bookingId", h.GetBooking)
	booking.Patch("/:bookingId/status", h.UpdateBookingStatus)
	booking.Post("/:bookingId/cancel", h.CancelBooking)
	booking.Post("/:bookingId/payment/sync", h.SyncBookingPayment)
	booking.Get("/:bookingId/lesson", h.GetLesson)
}
