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

type PayoutService struct {
	store    Store
	ledger   *LedgerService
	locker   Locker
	now      Clock
	currency string
	logger   *zap.Logger
}

func NewPayoutService(store Store, ledger *LedgerService, locker Locker, now Clock, currency string, logger *zap.Logger) *PayoutService {
	return &PayoutService{store: store, ledger: ledger, locker: locker, now: now, currency: currency, logger: logger.Named("payout")}
}

type PayoutInput struct {
	Amount      decimal.Decimal
	Method      models.PayoutMethod
	Destination string
}

type payoutEvent struct {
	PayoutID    uuid.UUID           `json:"payout_id"`
	TeacherID   uuid.UUID           `json:"teacher_id"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
	Method      models.PayoutMethod `json:"method"`
	Destination string              `json:"destination"`
	Status      models.PayoutStatus `json:"status"`
	ExternalRef *string             `json:"external_ref,omitempty"`
}

func newPayoutEvent(p *models.PayoutRequest) payoutEvent {
	return payoutEvent{
		PayoutID:    p.ID,
		TeacherID:   p.TeacherID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Method:      p.Method,
		Destination: p.Destination,
		Status:      p.Status,
		ExternalRef: p.ExternalRef,
	}
}

// RequestPayout reserves the amount from the teacher's withdrawable balance
// and files a pending request for an admin to review.
func (s *PayoutService) RequestPayout(ctx context.Context, teacherID uuid.UUID, in PayoutInput) (*models.PayoutRequest, error) {
	amount := in.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payout amount must be positive", ErrInvalidInput)
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payout method %q", ErrInvalidInput, in.Method)
	}
	destination := strings.TrimSpace(in.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: payout destination is required", ErrInvalidInput)
	}

	unlock, err := s.locker.Lock(ctx, AccountLockKey(teacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var payout *models.PayoutRequest
	err = s.store.Atomic(ctx, func(r Repos) error {
		if _, err := r.Teachers().Get(ctx, teacherID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: only teachers can request payouts", ErrForbidden)
			}
			return err
		}
		p := &models.PayoutRequest{
			ID:          uuid.New(),
			TeacherID:   teacherID,
			Amount:      amount,
			Currency:    s.currency,
			Method:      in.Method,
			Destination: destination,
			Status:      models.PayoutPending,
			RequestedAt: s.now(),
		}
		if _, err := s.ledger.ReserveForPayoutTx(ctx, r, teacherID, amount, p.ID); err != nil {
			return err
		}
		if err := r.Payouts().Create(ctx, p); err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("teacher_id", teacherID.String()),
		zap.String("amount", amount.StringFixed(2)))
	return payout, nil
}

// Review approves or rejects a pending payout. A rejection returns the
// reserved amount to the teacher's withdrawable balance.
func (s *PayoutService) Review(ctx context.Context, payoutID uuid.UUID, outcome models.PayoutStatus, reviewerID uuid.UUID, notes string) (*models.PayoutRequest, error) {
	if outcome != models.PayoutApproved && outcome != models.PayoutRejected {
		return nil, fmt.Errorf("%w: outcome must be approved or rejected", ErrInvalidInput)
	}
	return s.transition(ctx, payoutID, outcome, func(r Repos, p *models.PayoutRequest, now time.Time) error {
		p.ReviewerID = &reviewerID
		p.ProcessedAt = &now
		if notes != "" {
			p.AdminNotes = &notes
		}
		if outcome == models.PayoutRejected {
			_, err := s.ledger.CreditTx(ctx, r, p.TeacherID, p.Amount, p.ID, models.EntryRefund, models.BucketAvailable)
			return err
		}
		return nil
	})
}

// Complete records that the approved transfer left the platform.
func (s *PayoutService) Complete(ctx context.Context, payoutID uuid.UUID, externalRef string) (*models.PayoutRequest, error) {
	return s.transition(ctx, payoutID, models.PayoutCompleted, func(_ Repos, p *models.PayoutRequest, now time.Time) error {
		p.CompletedAt = &now
		if ref := strings.TrimSpace(externalRef); ref != "" {
			p.ExternalRef = &ref
		}
		return nil
	})
}

func (s *PayoutService) transition(ctx context.Context, payoutID uuid.UUID, next models.PayoutStatus, apply func(Repos, *models.PayoutRequest, time.Time) error) (*models.PayoutRequest, error) {
	current, err := s.store.Payouts().Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, AccountLockKey(current.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var payout *models.PayoutRequest
	err = s.store.Atomic(ctx, func(r Repos) error {
		p, err := r.Payouts().Get(ctx, payoutID)
		if err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: payout %s is %s, cannot become %s", ErrInvalidStateTransition, p.ID, p.Status, next)
		}
		now := s.now()
		p.Status = next
		if err := apply(r, p, now); err != nil {
			return err
		}
		if err := r.Payouts().Update(ctx, p); err != nil {
			if errors.Is(err, ErrStaleVersion) {
				return fmt.Errorf("%w: payout %s changed concurrently", ErrInvalidStateTransition, p.ID)
			}
			return err
		}
		payout = p
		switch next {
		case models.PayoutApproved:
			return enqueue(ctx, r, models.TopicPayoutApproved, p.ID, newPayoutEvent(p), now)
		case models.PayoutCompleted:
			return enqueue(ctx, r, models.TopicPayoutCompleted, p.ID, newPayoutEvent(p), now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payout status changed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("status", string(payout.Status)))
	return payout, nil
}

func (s *PayoutService) Get(ctx context.Context, payoutID uuid.UUID) (*models.PayoutRequest, error) {
	return s.store.Payouts().Get(ctx, payoutID)
}

func (s *PayoutService) ListForTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.PayoutRequest, error) {
	return s.store.Payouts().ListByTeacher(ctx, teacherID)
}

func (s *PayoutService) ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.Payouts().ListByStatus(ctx, status)
}
