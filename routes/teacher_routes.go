package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/handlers"
	"github.com/anjiri1684/tutor_marketplace/middleware"
)

func TeacherRoutes(api fiber.Router, h *handlers.Handler, protected fiber.Handler) {
	api.Get("/teachers", h.ListTeachers)
	api.Get("/teachers/:teacherId/availability", h.GetTeacherAvailability)

	teacher := api.Group("/teacher", protected, middleware.TeacherRequired())
	teacher.Get("/profile/me", h.GetTeacherProfile)
	teacher.Put("/profile/me", h.SubmitApplication)
	teacher.Post("/availability", h.AddAvailability)

	payouts := teacher.Group("/payouts")
	payouts.Post("/request", h.RequestPayout)
	payouts.Get("/requests", h.GetMyPayouts)
}
