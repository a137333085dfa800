package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type PayoutRequestInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"required,oneof=bank_transfer paypal mpesa"`
	Destination string          `json:"destination" validate:"required,max=255"`
}

func (h *Handler) GetWallet(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	balances, err := h.ledger.Balances(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, fiber.Map{
		"balance":      balances.Total,
		"pending":      balances.Pending,
		"withdrawable": balances.Available,
	})
}

func (h *Handler) GetWalletEntries(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := h.ledger.Entries(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, entries)
}

func (h *Handler) RequestPayout(c *fiber.Ctx) error {
	teacherID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req PayoutRequestInput
	if err := parse(c, &req); err != nil {
		return err
	}
	payout, err := h.payouts.RequestPayout(c.UserContext(), teacherID, services.PayoutInput{
		Amount:      req.Amount,
		Method:      models.PayoutMethod(req.Method),
		Destination: req.Destination,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, payout)
}

func (h *Handler) GetMyPayouts(c *fiber.Ctx) error {
	teacherID, err := currentUser(c)
	if err != nil {
		return err
	}
	payouts, err := h.payouts.ListForTeacher(c.UserContext(), teacherID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, payouts)
}
