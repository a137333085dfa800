package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/tutor_marketplace/middleware"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=student teacher"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      string(u.Role),
		Currency:  u.Currency,
		CreatedAt: u.CreatedAt,
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.accounts.Register(c.UserContext(), services.Registration{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, newUserResponse(user))
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken(h.opts.JWTSecret, user, h.opts.TokenTTL, h.opts.Now())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, fiber.Map{"token": token, "user": newUserResponse(user)})
}

func (h *Handler) Me(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	user, err := h.accounts.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, newUserResponse(user))
}
