package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/anjiri1684/tutor_marketplace/models"
)

type AccountService struct {
	store    Store
	approval *ApprovalService
	now      Clock
	currency string
	// PasswordCost is the bcrypt cost for new password hashes.
	PasswordCost int
	logger       *zap.Logger
}

func NewAccountService(store Store, approval *ApprovalService, now Clock, currency string, logger *zap.Logger) *AccountService {
	return &AccountService{
		store:        store,
		approval:     approval,
		now:          now,
		currency:     currency,
		PasswordCost: bcrypt.DefaultCost,
		logger:       logger.Named("account"),
	}
}

type Registration struct {
	FullName string
	Email    string
	Password string
	Role     models.Role
}

// Register creates a student or teacher account. Teachers start with an
// incomplete profile.
func (s *AccountService) Register(ctx context.Context, reg Registration) (*models.User, error) {
	if reg.Role != models.RoleStudent && reg.Role != models.RoleTeacher {
		return nil, fmt.Errorf("%w: role must be student or teacher", ErrInvalidInput)
	}
	user, err := s.newUser(reg)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(r Repos) error {
		if err := r.Users().Create(ctx, user); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: email %s is registered", ErrAlreadyExists, user.Email)
			}
			return err
		}
		if user.Role == models.RoleTeacher {
			_, err := s.approval.createProfileTx(ctx, r, user.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account registered", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.Users().Get(ctx, id)
}

// EnsureAdmin creates the admin account unless the email is already taken.
func (s *AccountService) EnsureAdmin(ctx context.Context, fullName, email, password string) (*models.User, error) {
	existing, err := s.store.Users().GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		s.logger.Info("admin user already exists", zap.String("email", existing.Email))
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	admin, err := s.newUser(Registration{FullName: fullName, Email: email, Password: password, Role: models.RoleAdmin})
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, admin); err != nil {
		return nil, err
	}
	s.logger.Info("admin user seeded", zap.String("email", admin.Email))
	return admin, nil
}

func (s *AccountService) newUser(reg Registration) (*models.User, error) {
	email := normalizeEmail(reg.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(reg.Password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	now := s.now()
	return &models.User{
		ID:        uuid.New(),
		FullName:  strings.TrimSpace(reg.FullName),
		Email:     email,
		Password:  string(hash),
		Role:      reg.Role,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
