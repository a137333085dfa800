package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/models"
)

type ApprovalService struct {
	store  Store
	now    Clock
	logger *zap.Logger
}

func NewApprovalService(store Store, now Clock, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{store: store, now: now, logger: logger.Named("approval")}
}

type Application struct {
	Headline       string
	Bio            string
	PricePerLesson decimal.Decimal
}

type teacherDecidedEvent struct {
	TeacherID  uuid.UUID             `json:"teacher_id"`
	Status     models.ApprovalStatus `json:"status"`
	ReviewerID uuid.UUID             `json:"reviewer_id"`
	Note       string                `json:"note,omitempty"`
	DecidedAt  time.Time             `json:"decided_at"`
}

// CreateProfile starts a teacher at incomplete.
func (s *ApprovalService) CreateProfile(ctx context.Context, userID uuid.UUID) (*models.Teacher, error) {
	var profile *models.Teacher
	err := s.store.Atomic(ctx, func(r Repos) error {
		var err error
		profile, err = s.createProfileTx(ctx, r, userID)
		return err
	})
	return profile, err
}

func (s *ApprovalService) createProfileTx(ctx context.Context, r Repos, userID uuid.UUID) (*models.Teacher, error) {
	user, err := r.Users().Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	if user.Role != models.RoleTeacher {
		return nil, fmt.Errorf("%w: user %s is not a teacher", ErrInvalidInput, userID)
	}
	now := s.now()
	profile := &models.Teacher{
		UserID:         userID,
		Status:         models.ApprovalIncomplete,
		PricePerLesson: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Teachers().Create(ctx, profile); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("%w: teacher profile %s", ErrAlreadyExists, userID)
		}
		return nil, err
	}
	return profile, nil
}

// SubmitApplication moves an incomplete or rejected profile to pending.
func (s *ApprovalService) SubmitApplication(ctx context.Context, userID uuid.UUID, app Application) (*models.Teacher, error) {
	headline := strings.TrimSpace(app.Headline)
	if headline == "" {
		return nil, fmt.Errorf("%w: headline is required", ErrInvalidInput)
	}
	if !app.PricePerLesson.IsPositive() {
		return nil, fmt.Errorf("%w: price per lesson must be positive", ErrInvalidInput)
	}

	var profile *models.Teacher
	err := s.store.Atomic(ctx, func(r Repos) error {
		p, err := r.Teachers().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("teacher %s: %w", userID, err)
		}
		if !p.Status.CanTransitionTo(models.ApprovalPending) {
			return fmt.Errorf("%w: profile is %s", ErrAlreadySubmitted, p.Status)
		}
		now := s.now()
		bio := strings.TrimSpace(app.Bio)
		p.Headline = &headline
		p.Bio = &bio
		p.PricePerLesson = app.PricePerLesson.Round(2)
		p.Status = models.ApprovalPending
		p.SubmittedAt = &now
		p.ReviewerID = nil
		p.ReviewNote = nil
		p.DecidedAt = nil
		p.UpdatedAt = now
		if err := r.Teachers().Update(ctx, p); err != nil {
			if errors.Is(err, ErrStaleVersion) {
				return fmt.Errorf("%w: profile changed concurrently", ErrAlreadySubmitted)
			}
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("teacher application submitted", zap.String("teacher_id", userID.String()))
	return profile, nil
}

// Decide records an admin's approval or rejection of a pending application.
func (s *ApprovalService) Decide(ctx context.Context, userID uuid.UUID, outcome models.ApprovalStatus, reviewerID uuid.UUID, note string) (*models.Teacher, error) {
	if outcome != models.ApprovalApproved && outcome != models.ApprovalRejected {
		return nil, fmt.Errorf("%w: outcome must be approved or rejected", ErrInvalidInput)
	}
	return s.review(ctx, userID, models.ApprovalPending, outcome, reviewerID, note)
}

// Suspend revokes an approved teacher's bookability. Existing bookings are
// left alone.
func (s *ApprovalService) Suspend(ctx context.Context, userID, adminID uuid.UUID, note string) (*models.Teacher, error) {
	return s.review(ctx, userID, models.ApprovalApproved, models.ApprovalRejected, adminID, note)
}

func (s *ApprovalService) review(ctx context.Context, userID uuid.UUID, from, to models.ApprovalStatus, reviewerID uuid.UUID, note string) (*models.Teacher, error) {
	var profile *models.Teacher
	err := s.store.Atomic(ctx, func(r Repos) error {
		p, err := r.Teachers().Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("teacher %s: %w", userID, err)
		}
		if p.Status != from || !p.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: teacher %s is %s, cannot become %s", ErrInvalidStateTransition, userID, p.Status, to)
		}
		now := s.now()
		p.Status = to
		p.ReviewerID = &reviewerID
		p.DecidedAt = &now
		p.UpdatedAt = now
		if note != "" {
			p.ReviewNote = &note
		}
		if err := r.Teachers().Update(ctx, p); err != nil {
			if errors.Is(err, ErrStaleVersion) {
				return fmt.Errorf("%w: teacher %s changed concurrently", ErrInvalidStateTransition, userID)
			}
			return err
		}
		profile = p
		return enqueue(ctx, r, models.TopicTeacherDecided, userID, teacherDecidedEvent{
			TeacherID:  userID,
			Status:     to,
			ReviewerID: reviewerID,
			Note:       note,
			DecidedAt:  now,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("teacher application decided",
		zap.String("teacher_id", userID.String()),
		zap.String("status", string(to)),
		zap.String("reviewer_id", reviewerID.String()))
	return profile, nil
}

// IsBookable reports whether students may book the teacher. Unknown teachers
// are not bookable.
func (s *ApprovalService) IsBookable(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := bookableTeacher(ctx, s.store, userID)
	if errors.Is(err, ErrTeacherNotBookable) {
		return false, nil
	}
	return err == nil, err
}

func bookableTeacher(ctx context.Context, r Repos, userID uuid.UUID) (*models.Teacher, error) {
	p, err := r.Teachers().Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no teacher profile for %s", ErrTeacherNotBookable, userID)
	}
	if err != nil {
		return nil, err
	}
	if !p.Bookable() {
		return nil, fmt.Errorf("%w: teacher %s is %s", ErrTeacherNotBookable, userID, p.Status)
	}
	return p, nil
}

func (s *ApprovalService) Profile(ctx context.Context, userID uuid.UUID) (*models.Teacher, error) {
	return s.store.Teachers().Get(ctx, userID)
}

func (s *ApprovalService) ListByStatus(ctx context.Context, status models.ApprovalStatus) ([]models.Teacher, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.Teachers().ListByStatus(ctx, status)
}

// AddAvailability opens a window in which students may book lessons.
// Windows of one teacher never overlap.
func (s *ApprovalService) AddAvailability(ctx context.Context, userID uuid.UUID, start, end time.Time) (*models.AvailabilitySlot, error) {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil, fmt.Errorf("%w: availability must end after it starts", ErrInvalidInput)
	}
	if !start.After(s.now()) {
		return nil, fmt.Errorf("%w: availability must start in the future", ErrInvalidInput)
	}

	var slot *models.AvailabilitySlot
	err := s.store.Atomic(ctx, func(r Repos) error {
		if _, err := r.Teachers().Get(ctx, userID); err != nil {
			return fmt.Errorf("teacher %s: %w", userID, err)
		}
		existing, err := r.Teachers().Slots(ctx, userID)
		if err != nil {
			return err
		}
		for _, w := range existing {
			if w.Overlaps(start, end) {
				return fmt.Errorf("%w: overlaps availability %s", ErrSlotUnavailable, w.ID)
			}
		}
		slot = &models.AvailabilitySlot{ID: uuid.New(), TeacherID: userID, StartTime: start, EndTime: end, CreatedAt: s.now()}
		return r.Teachers().AddSlot(ctx, slot)
	})
	return slot, err
}

func (s *ApprovalService) Availability(ctx context.Context, userID uuid.UUID) ([]models.AvailabilitySlot, error) {
	return s.store.Teachers().Slots(ctx, userID)
}
