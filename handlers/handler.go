package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/middleware"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

var validate = validator.New()

type Options struct {
	JWTSecret     string
	TokenTTL      time.Duration
	WebhookSecret string
	Now           services.Clock
}

// Handler serves the HTTP API on top of the domain services.
type Handler struct {
	accounts *services.AccountService
	approval *services.ApprovalService
	bookings *services.BookingService
	ledger   *services.LedgerService
	payouts  *services.PayoutService
	opts     Options
	logger   *zap.Logger
}

func New(accounts *services.AccountService, approval *services.ApprovalService, bookings *services.BookingService, ledger *services.LedgerService, payouts *services.PayoutService, opts Options, logger *zap.Logger) *Handler {
	if opts.Now == nil {
		opts.Now = services.SystemClock
	}
	return &Handler{
		accounts: accounts,
		approval: approval,
		bookings: bookings,
		ledger:   ledger,
		payouts:  payouts,
		opts:     opts,
		logger:   logger.Named("http"),
	}
}

func success(c *fiber.Ctx, code int, data any) error {
	return c.Status(code).JSON(fiber.Map{"status": "success", "data": data})
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: cannot parse JSON", services.ErrInvalidInput)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return parseUUID(c.Params(name), name)
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", services.ErrInvalidInput, name)
	}
	return id, nil
}

func currentUser(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := middleware.UserID(c)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired JWT")
	}
	return id, nil
}

// canView reports whether the caller is a party to the booking or an admin.
func canView(c *fiber.Ctx, userID uuid.UUID, b *models.Booking) error {
	if b.StudentID == userID || b.TeacherID == userID || middleware.Role(c) == models.RoleAdmin {
		return nil
	}
	return services.ErrForbidden
}

type errorKind struct {
	err  error
	code int
	kind string
}

var errorKinds = []errorKind{
	{services.ErrTeacherNotBookable, fiber.StatusConflict, "teacher_not_bookable"},
	{services.ErrSlotUnavailable, fiber.StatusConflict, "slot_unavailable"},
	{services.ErrInvalidStateTransition, fiber.StatusConflict, "invalid_state_transition"},
	{services.ErrAlreadySubmitted, fiber.StatusConflict, "already_submitted"},
	{services.ErrAlreadyExists, fiber.StatusConflict, "already_exists"},
	{services.ErrStaleVersion, fiber.StatusConflict, "stale_version"},
	{services.ErrInsufficientFunds, fiber.StatusPaymentRequired, "insufficient_funds"},
	{services.ErrPaymentFailed, fiber.StatusPaymentRequired, "payment_failed"},
	{services.ErrGatewayTimeout, fiber.StatusGatewayTimeout, "gateway_timeout"},
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrForbidden, fiber.StatusForbidden, "forbidden"},
	{services.ErrInvalidCredentials, fiber.StatusUnauthorized, "invalid_credentials"},
	{services.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
}

// ErrorHandler turns domain errors into JSON error responses.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, kind := fiber.StatusInternalServerError, "internal"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code, kind = fe.Code, "http_error"
		} else {
			for _, k := range errorKinds {
				if errors.Is(err, k.err) {
					code, kind = k.code, k.kind
					break
				}
			}
		}

		message := err.Error()
		if code >= fiber.StatusInternalServerError && code != fiber.StatusGatewayTimeout {
			logger.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
			message = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{
			"status":  "error",
			"error":   kind,
			"message": message,
		})
	}
}
