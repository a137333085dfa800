package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/anjiri1684/tutor_marketplace/models"
)

var errNoClaims = errors.New("missing token claims")

func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// IssueToken signs the token Protected accepts.
func IssueToken(secret string, user *models.User, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    string(user.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func claims(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, errNoClaims
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errNoClaims
	}
	return mc, nil
}

// UserID returns the authenticated user's id.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	mc, err := claims(c)
	if err != nil {
		return uuid.Nil, err
	}
	raw, _ := mc["user_id"].(string)
	return uuid.Parse(raw)
}

func Role(c *fiber.Ctx) models.Role {
	mc, err := claims(c)
	if err != nil {
		return ""
	}
	role, _ := mc["role"].(string)
	return models.Role(role)
}

func requireRole(role models.Role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Role(c) != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"error":   "forbidden",
				"message": message,
			})
		}
		return c.Next()
	}
}

func AdminRequired() fiber.Handler {
	return requireRole(models.RoleAdmin, "Forbidden: Admin access required")
}

func TeacherRequired() fiber.Handler {
	return requireRole(models.RoleTeacher, "Forbidden: Teacher access required")
}

func StudentRequired() fiber.Handler {
	return requireRole(models.RoleStudent, "Forbidden: Student access required")
}
