package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
)

type DecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Note   string `json:"note" validate:"max=2000"`
}

type SuspendRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type PayoutReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type PayoutCompleteRequest struct {
	ExternalRef string `json:"external_ref" validate:"required,max=255"`
}

type TopUpRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"required,uuid"`
}

func (h *Handler) GetApplications(c *fiber.Ctx) error {
	status := models.ApprovalStatus(c.Query("status", string(models.ApprovalPending)))
	if !status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid status filter")
	}
	teachers, err := h.approval.ListByStatus(c.UserContext(), status)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, teachers)
}

func (h *Handler) DecideApplication(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	var req DecisionRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	teacher, err := h.approval.Decide(c.UserContext(), teacherID, models.ApprovalStatus(req.Status), adminID, req.Note)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, teacher)
}

func (h *Handler) SuspendTeacher(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	teacherID, err := paramID(c, "teacherId")
	if err != nil {
		return err
	}
	var req SuspendRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	teacher, err := h.approval.Suspend(c.UserContext(), teacherID, adminID, req.Note)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, teacher)
}

func (h *Handler) GetPayoutRequests(c *fiber.Ctx) error {
	status := models.PayoutStatus(c.Query("status", string(models.PayoutPending)))
	if !status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid status filter")
	}
	payouts, err := h.payouts.ListByStatus(c.UserContext(), status)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, payouts)
}

func (h *Handler) ReviewPayout(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	payoutID, err := paramID(c, "payoutId")
	if err != nil {
		return err
	}
	var req PayoutReviewRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	payout, err := h.payouts.Review(c.UserContext(), payoutID, models.PayoutStatus(req.Status), adminID, req.Notes)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, payout)
}

func (h *Handler) CompletePayout(c *fiber.Ctx) error {
	payoutID, err := paramID(c, "payoutId")
	if err != nil {
		return err
	}
	var req PayoutCompleteRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	payout, err := h.payouts.Complete(c.UserContext(), payoutID, req.ExternalRef)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, payout)
}

// TopUpWallet credits a user's available balance. The reference makes
// retries of the same top-up land once.
func (h *Handler) TopUpWallet(c *fiber.Ctx) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req TopUpRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	reference, err := parseUUID(req.Reference, "reference")
	if err != nil {
		return err
	}
	entry, err := h.ledger.Credit(c.UserContext(), userID, req.Amount, reference, models.EntryCredit, models.BucketAvailable)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, entry)
}
