package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type ApplicationRequest struct {
	Headline       string          `json:"headline" validate:"required,max=255"`
	Bio            string          `json:"bio" validate:"max=5000"`
	PricePerLesson decimal.Decimal `json:"price_per_lesson"`
}

type AvailabilityRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

func (h *Handler) GetTeacherProfile(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.approval.Profile(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, profile)
}

func (h *Handler) SubmitApplication(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req ApplicationRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	profile, err := h.approval.SubmitApplication(c.UserContext(), userID, services.Application{
		Headline:       req.Headline,
		Bio:            req.Bio,
		PricePerLesson: req.PricePerLesson,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, profile)
}

func (h *Handler) AddAvailability(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req AvailabilityRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	slot, err := h.approval.AddAvailability(c.UserContext(), userID, req.StartTime, req.EndTime)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, slot)
}

// ListTeachers lists approved teachers.
func (h *Handler) ListTeachers(c *fiber.Ctx) error {
	teachers, err := h.approval.ListByStatus(c.UserContext(), models.ApprovalApproved)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, teachers)
}

func (h *Handler) GetTeacherAvailability(c *fiber.Ctx) error {
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	bookable, err := h.approval.IsBookable(c.UserContext(), teacherID)
	if err != nil {
		return err
	}
	if !bookable {
		return services.ErrTeacherNotBookable
	}
	slots, err := h.approval.Availability(c.UserContext(), teacherID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, slots)
}
