package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type CreateBookingRequest struct {
	TeacherID       string    `json:"teacher_id" validate:"required,uuid"`
	SlotStart       time.Time `json:"slot_start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	PaymentMethod   string    `json:"payment_method" validate:"required,oneof=wallet card paypal"`
}

type UpdateBookingStatusRequest struct {
	Status  string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Version *int   `json:"version"`
}

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	studentID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req CreateBookingRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	teacherID, err := parseUUID(req.TeacherID, "teacher_id")
	if err != nil {
		return err
	}

	booking, err := h.bookings.RequestBooking(c.UserContext(), services.BookingRequest{
		StudentID:       studentID,
		TeacherID:       teacherID,
		SlotStart:       req.SlotStart,
		DurationMinutes: req.DurationMinutes,
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, booking)
}

func (h *Handler) GetMyBookings(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	bookings, err := h.bookings.ListForUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, bookings)
}

func (h *Handler) GetBooking(c *fiber.Ctx) error {
	booking, err := h.visibleBooking(c)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, booking)
}

func (h *Handler) UpdateBookingStatus(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	var req UpdateBookingStatusRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	booking, err := h.bookings.UpdateStatus(c.UserContext(), bookingID, models.BookingStatus(req.Status), userID, req.Version)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, booking)
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	booking, err := h.bookings.Cancel(c.UserContext(), bookingID, userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, booking)
}

// SyncBookingPayment is hit when the payer comes back from the provider's
// approval page.
func (h *Handler) SyncBookingPayment(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return err
	}
	booking, err := h.bookings.SyncPayment(c.UserContext(), bookingID, userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, booking)
}

func (h *Handler) GetLesson(c *fiber.Ctx) error {
	booking, err := h.visibleBooking(c)
	if err != nil {
		return err
	}
	lesson, err := h.bookings.Lesson(c.UserContext(), booking.ID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, lesson)
}

func (h *Handler) visibleBooking(c *fiber.Ctx) (*models.Booking, error) {
	userID, err := currentUser(c)
	if err != nil {
		return nil, err
	}
	bookingID, err := paramID(c, "bookingId")
	if err != nil {
		return nil, err
	}
	booking, err := h.bookings.Get(c.UserContext(), bookingID)
	if err != nil {
		return nil, err
	}
	if err := canView(c, userID, booking); err != nil {
		return nil, err
	}
	return booking, nil
}
