package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/models"
)

const (
	MinLessonMinutes = 15
	MaxLessonMinutes = 240
)

type BookingConfig struct {
	PlatformFeeRate decimal.Decimal
	// LessonMinutes is the length PricePerLesson refers to.
	LessonMinutes int
	Currency      string
	// PaymentTimeout bounds how long a booking may wait for an external
	// payment before reconciliation looks at it.
	PaymentTimeout time.Duration
	// ReconcileGrace is how long past the deadline a still-pending charge is
	// tolerated before it is voided.
	ReconcileGrace time.Duration
	GatewayRetries uint64
	GatewayBackoff time.Duration
	SweepBatchSize int
}

func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		PlatformFeeRate: decimal.RequireFromString("0.15"),
		LessonMinutes:   60,
		Currency:        "USD",
		PaymentTimeout:  15 * time.Minute,
		ReconcileGrace:  15 * time.Minute,
		GatewayRetries:  3,
		GatewayBackoff:  200 * time.Millisecond,
		SweepBatchSize:  100,
	}
}

type BookingService struct {
	store   Store
	ledger  *LedgerService
	gateway PaymentGateway
	locker  Locker
	now     Clock
	cfg     BookingConfig
	logger  *zap.Logger
}

func NewBookingService(store Store, ledger *LedgerService, gateway PaymentGateway, locker Locker, now Clock, cfg BookingConfig, logger *zap.Logger) *BookingService {
	return &BookingService{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		locker:  locker,
		now:     now,
		cfg:     cfg,
		logger:  logger.Named("booking"),
	}
}

type BookingRequest struct {
	StudentID       uuid.UUID
	TeacherID       uuid.UUID
	SlotStart       time.Time
	DurationMinutes int
	PaymentMethod   models.PaymentMethod
}

type bookingEvent struct {
	BookingID   uuid.UUID            `json:"booking_id"`
	StudentID   uuid.UUID            `json:"student_id"`
	TeacherID   uuid.UUID            `json:"teacher_id"`
	SlotStart   time.Time            `json:"slot_start"`
	Status      models.BookingStatus `json:"status"`
	Price       decimal.Decimal      `json:"price"`
	CancelledBy *uuid.UUID           `json:"cancelled_by,omitempty"`
}

func newBookingEvent(b *models.Booking) bookingEvent {
	return bookingEvent{
		BookingID:   b.ID,
		StudentID:   b.StudentID,
		TeacherID:   b.TeacherID,
		SlotStart:   b.SlotStart,
		Status:      b.Status,
		Price:       b.Price,
		CancelledBy: b.CancelledBy,
	}
}

// Quote prices a lesson from the teacher's rate. The fee is the platform's
// commission and the rest is the teacher's earnings.
func (s *BookingService) Quote(pricePerLesson decimal.Decimal, minutes int) (price, fee decimal.Decimal) {
	price = pricePerLesson.
		Mul(decimal.NewFromInt(int64(minutes))).
		Div(decimal.NewFromInt(int64(s.cfg.LessonMinutes))).
		Round(2)
	fee = price.Mul(s.cfg.PlatformFeeRate).Round(2)
	return price, fee
}

// RequestBooking reserves a slot and takes payment. Wallet bookings are
// charged and confirmed in one transaction. Card and PayPal bookings are
// left pending until the gateway reports the outcome.
func (s *BookingService) RequestBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	if req.DurationMinutes < MinLessonMinutes || req.DurationMinutes > MaxLessonMinutes {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidInput, MinLessonMinutes, MaxLessonMinutes)
	}
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, req.PaymentMethod)
	}
	if req.StudentID == req.TeacherID {
		return nil, fmt.Errorf("%w: cannot book yourself", ErrInvalidInput)
	}
	req.SlotStart = req.SlotStart.UTC()

	if req.PaymentMethod == models.PaymentWallet {
		return s.bookWithWallet(ctx, req)
	}
	return s.bookWithGateway(ctx, req)
}

func (s *BookingService) bookWithWallet(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	unlock, err := s.locker.Lock(ctx, AccountLockKey(req.StudentID), AccountLockKey(req.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.Atomic(ctx, func(r Repos) error {
		now := s.now()
		b, err := s.reserveTx(ctx, r, req, now)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ChargeTx(ctx, r, b.StudentID, b.Price, b.ID); err != nil {
			return err
		}
		b.Paid = true
		if err := s.confirmTx(ctx, r, b, now); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking confirmed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("payment_method", string(booking.PaymentMethod)),
		zap.String("price", booking.Price.StringFixed(2)))
	return booking, nil
}

func (s *BookingService) bookWithGateway(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	booking, err := s.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.initiateCharge(ctx, booking)
	if err == nil {
		return s.recordChargeResult(ctx, booking, result)
	}

	if errors.Is(err, ErrPaymentFailed) {
		s.logger.Info("charge declined", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		if _, cerr := s.HandlePaymentResult(ctx, booking.ID, ChargeFailed, ""); cerr != nil {
			s.logger.Error("releasing declined booking", zap.String("booking_id", booking.ID.String()), zap.Error(cerr))
		}
		return nil, err
	}

	// The outcome of the charge is unknown. Void it so the slot can be
	// released; if that also fails the booking stays pending for the
	// reconciliation job.
	s.logger.Warn("charge outcome unknown after retries", zap.String("booking_id", booking.ID.String()), zap.Error(err))
	settled, verr := s.voidCharge(ctx, booking, nil)
	if verr != nil {
		s.logger.Warn("voiding charge failed, leaving booking pending", zap.String("booking_id", booking.ID.String()), zap.Error(verr))
		return nil, fmt.Errorf("%w: booking %s awaits reconciliation", ErrGatewayTimeout, booking.ID)
	}
	if settled.Status == models.BookingConfirmed {
		return settled, nil
	}
	return nil, fmt.Errorf("%w: booking %s was released", ErrGatewayTimeout, booking.ID)
}

// reserve holds the teacher's lock only while the pending booking is
// written; the gateway call runs without it.
func (s *BookingService) reserve(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	unlock, err := s.locker.Lock(ctx, AccountLockKey(req.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.Atomic(ctx, func(r Repos) error {
		var err error
		booking, err = s.reserveTx(ctx, r, req, s.now())
		return err
	})
	return booking, err
}

func (s *BookingService) initiateCharge(ctx context.Context, b *models.Booking) (*ChargeResult, error) {
	backoff := retry.WithMaxRetries(s.cfg.GatewayRetries, retry.NewExponential(s.cfg.GatewayBackoff))
	req := ChargeRequest{
		CorrelationID: b.ID,
		AccountID:     b.StudentID,
		Amount:        b.Price,
		Currency:      b.Currency,
		Method:        b.PaymentMethod,
	}

	var result *ChargeResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.gateway.InitiateCharge(ctx, req)
		if errors.Is(err, ErrGatewayTimeout) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil && !errors.Is(err, ErrPaymentFailed) && !errors.Is(err, ErrGatewayTimeout) {
		err = fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return result, err
}

func (s *BookingService) recordChargeResult(ctx context.Context, booking *models.Booking, result *ChargeResult) (*models.Booking, error) {
	switch result.Status {
	case ChargeSucceeded:
		return s.HandlePaymentResult(ctx, booking.ID, ChargeSucceeded, result.ProviderRef)
	case ChargeFailed:
		if _, err := s.HandlePaymentResult(ctx, booking.ID, ChargeFailed, result.ProviderRef); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: charge for booking %s declined", ErrPaymentFailed, booking.ID)
	}

	var updated *models.Booking
	err := s.store.Atomic(ctx, func(r Repos) error {
		b, err := r.Bookings().Get(ctx, booking.ID)
		if err != nil {
			return err
		}
		updated = b
		if b.Status != models.BookingPending || b.PaymentRef != nil || result.ProviderRef == "" {
			return nil
		}
		ref := result.ProviderRef
		b.PaymentRef = &ref
		if result.ApprovalURL != "" {
			url := result.ApprovalURL
			b.PaymentURL = &url
		}
		b.UpdatedAt = s.now()
		return r.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking awaiting payment",
		zap.String("booking_id", updated.ID.String()),
		zap.String("payment_method", string(updated.PaymentMethod)))
	return updated, nil
}

// reserveTx validates the slot against the teacher's state and inserts the
// pending booking. The partial unique index turns a lost race for the same
// slot into ErrSlotUnavailable.
func (s *BookingService) reserveTx(ctx context.Context, r Repos, req BookingRequest, now time.Time) (*models.Booking, error) {
	profile, err := bookableTeacher(ctx, r, req.TeacherID)
	if err != nil {
		return nil, err
	}
	student, err := r.Users().Get(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("student %s: %w", req.StudentID, err)
	}
	if student.Role != models.RoleStudent {
		return nil, fmt.Errorf("%w: only students can book lessons", ErrForbidden)
	}

	start := req.SlotStart
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	if !start.After(now) {
		return nil, fmt.Errorf("%w: slot has already started", ErrSlotUnavailable)
	}

	slots, err := r.Teachers().Slots(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}
	covered := false
	for _, w := range slots {
		if w.Covers(start, end) {
			covered = true
			break
		}
	}
	if !covered {
		return nil, fmt.Errorf("%w: outside the teacher's availability", ErrSlotUnavailable)
	}

	live, err := r.Bookings().ListLive(ctx, req.TeacherID, start.Add(-MaxLessonMinutes*time.Minute), end)
	if err != nil {
		return nil, err
	}
	for _, other := range live {
		if other.SlotStart.Before(end) && other.SlotEnd().After(start) {
			return nil, fmt.Errorf("%w: overlaps booking %s", ErrSlotUnavailable, other.ID)
		}
	}

	price, fee := s.Quote(profile.PricePerLesson, req.DurationMinutes)
	b := &models.Booking{
		ID:              uuid.New(),
		StudentID:       req.StudentID,
		TeacherID:       req.TeacherID,
		SlotStart:       start,
		DurationMinutes: req.DurationMinutes,
		Price:           price,
		PlatformFee:     fee,
		Currency:        s.cfg.Currency,
		PaymentMethod:   req.PaymentMethod,
		Status:          models.BookingPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if b.ExternallyPaid() {
		deadline := now.Add(s.cfg.PaymentTimeout)
		b.PaymentDeadline = &deadline
	}
	if err := r.Bookings().Insert(ctx, b); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("%w: slot already booked", ErrSlotUnavailable)
		}
		return nil, err
	}
	return b, nil
}

// HandlePaymentResult applies a gateway outcome to a pending booking.
// Repeated deliveries of the same outcome are no-ops.
func (s *BookingService) HandlePaymentResult(ctx context.Context, bookingID uuid.UUID, outcome ChargeStatus, providerRef string) (*models.Booking, error) {
	if outcome == ChargePending {
		return s.store.Bookings().Get(ctx, bookingID)
	}
	if outcome != ChargeSucceeded && outcome != ChargeFailed {
		return nil, fmt.Errorf("%w: unknown charge outcome %q", ErrInvalidInput, outcome)
	}

	current, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, AccountLockKey(current.StudentID), AccountLockKey(current.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.Atomic(ctx, func(r Repos) error {
		b, err := r.Bookings().Get(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b
		if providerRef != "" && b.PaymentRef == nil {
			b.PaymentRef = &providerRef
		}
		now := s.now()

		if outcome == ChargeFailed {
			switch b.Status {
			case models.BookingPending:
				return s.cancelTx(ctx, r, b, nil, now)
			case models.BookingCancelled:
				return nil
			}
			return fmt.Errorf("%w: booking %s is %s, cannot apply a failed charge", ErrInvalidStateTransition, b.ID, b.Status)
		}

		switch b.Status {
		case models.BookingPending:
			b.Paid = true
			return s.confirmTx(ctx, r, b, now)
		case models.BookingCancelled:
			if b.Paid {
				return nil
			}
			// Captured after the slot was released. The money goes back to the
			// student's wallet.
			b.Paid = true
			b.UpdatedAt = now
			if err := r.Bookings().Update(ctx, b); err != nil {
				return err
			}
			s.logger.Warn("late capture refunded to wallet", zap.String("booking_id", b.ID.String()))
			_, err := s.ledger.CreditTx(ctx, r, b.StudentID, b.Price, b.ID, models.EntryRefund, models.BucketAvailable)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment result applied",
		zap.String("booking_id", booking.ID.String()),
		zap.String("outcome", string(outcome)),
		zap.String("status", string(booking.Status)))
	return booking, nil
}

// Cancel cancels a pending or confirmed booking on behalf of its student,
// its teacher or an admin. A paid student is refunded to the wallet and the
// teacher's pending earnings are reversed. Once the slot has ended the
// lesson can only be completed.
func (s *BookingService) Cancel(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cancelAs(ctx, b, actorID)
}

// cancelAs cancels the booking as read in b. A booking that moved past b's
// version in the meantime is left alone.
func (s *BookingService) cancelAs(ctx context.Context, b *models.Booking, actorID uuid.UUID) (*models.Booking, error) {
	now := s.now()
	if err := s.authorize(ctx, b, actorID, true); err != nil {
		return nil, err
	}
	if err := cancellable(b, now); err != nil {
		return nil, err
	}
	if b.Status == models.BookingPending && b.ExternallyPaid() {
		return s.voidCharge(ctx, b, &actorID)
	}
	return s.cancel(ctx, b, &actorID, now)
}

func cancellable(b *models.Booking, now time.Time) error {
	if !b.Status.CanTransitionTo(models.BookingCancelled) {
		return fmt.Errorf("%w: booking %s is %s", ErrInvalidStateTransition, b.ID, b.Status)
	}
	if !now.Before(b.SlotEnd()) {
		return fmt.Errorf("%w: booking %s has already ended", ErrInvalidStateTransition, b.ID)
	}
	return nil
}

func (s *BookingService) cancel(ctx context.Context, current *models.Booking, actorID *uuid.UUID, now time.Time) (*models.Booking, error) {
	unlock, err := s.locker.Lock(ctx, AccountLockKey(current.StudentID), AccountLockKey(current.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.Atomic(ctx, func(r Repos) error {
		b, err := r.Bookings().Get(ctx, current.ID)
		if err != nil {
			return err
		}
		if b.Version != current.Version {
			return fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidStateTransition, b.ID)
		}
		if err := cancellable(b, now); err != nil {
			return err
		}
		booking = b
		return s.cancelTx(ctx, r, b, actorID, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking cancelled", zap.String("booking_id", booking.ID.String()))
	return booking, nil
}

// voidCharge cancels the gateway side of the pending external booking read
// in pending and then the booking itself. A charge that turns out to be
// captured is confirmed first, so the cancellation refunds it like any paid
// booking.
func (s *BookingService) voidCharge(ctx context.Context, pending *models.Booking, actorID *uuid.UUID) (*models.Booking, error) {
	ref := chargeRef(pending)
	err := s.gateway.Cancel(ctx, ref)
	captured := errors.Is(err, ErrAlreadyCaptured)
	if err != nil && !captured {
		return nil, err
	}
	if !captured {
		return s.cancel(ctx, pending, actorID, s.now())
	}

	current, err := s.store.Bookings().Get(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingPending {
		if current, err = s.HandlePaymentResult(ctx, pending.ID, ChargeSucceeded, ref.ProviderRef); err != nil {
			return nil, err
		}
		if actorID == nil {
			// Reconciliation found the money captured; keep the lesson.
			return current, nil
		}
	}
	return s.cancel(ctx, current, actorID, s.now())
}

func (s *BookingService) cancelTx(ctx context.Context, r Repos, b *models.Booking, actorID *uuid.UUID, now time.Time) error {
	wasConfirmed := b.Status == models.BookingConfirmed
	if err := s.transitionTx(ctx, r, b, models.BookingCancelled, now, func(b *models.Booking) {
		b.CancelledBy = actorID
	}); err != nil {
		return err
	}
	if b.Paid {
		if _, err := s.ledger.CreditTx(ctx, r, b.StudentID, b.Price, b.ID, models.EntryRefund, models.BucketAvailable); err != nil {
			return err
		}
	}
	if wasConfirmed {
		if _, err := s.ledger.ReverseCreditTx(ctx, r, b.TeacherID, b.TeacherEarnings(), b.ID); err != nil {
			return err
		}
	}
	return enqueue(ctx, r, models.TopicBookingCancelled, b.ID, newBookingEvent(b), now)
}

func (s *BookingService) confirmTx(ctx context.Context, r Repos, b *models.Booking, now time.Time) error {
	if err := s.transitionTx(ctx, r, b, models.BookingConfirmed, now, nil); err != nil {
		return err
	}
	lesson := &models.LessonRecord{
		ID:              uuid.New(),
		BookingID:       b.ID,
		TeacherID:       b.TeacherID,
		StudentID:       b.StudentID,
		ScheduledAt:     b.SlotStart,
		DurationMinutes: b.DurationMinutes,
		Price:           b.Price,
		PlatformFee:     b.PlatformFee,
		TeacherEarnings: b.TeacherEarnings(),
		CreatedAt:       now,
	}
	if err := r.Lessons().Create(ctx, lesson); err != nil {
		return err
	}
	if _, err := s.ledger.CreditTx(ctx, r, b.TeacherID, b.TeacherEarnings(), b.ID, models.EntryCredit, models.BucketPending); err != nil {
		return err
	}
	return enqueue(ctx, r, models.TopicBookingConfirmed, b.ID, newBookingEvent(b), now)
}

func (s *BookingService) transitionTx(ctx context.Context, r Repos, b *models.Booking, next models.BookingStatus, now time.Time, mutate func(*models.Booking)) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: booking %s is %s, cannot become %s", ErrInvalidStateTransition, b.ID, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = now
	if mutate != nil {
		mutate(b)
	}
	if err := r.Bookings().Update(ctx, b); err != nil {
		if errors.Is(err, ErrStaleVersion) {
			return fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidStateTransition, b.ID)
		}
		return err
	}
	return nil
}

// MarkCompleted completes a confirmed booking whose slot has ended and makes
// the teacher's earnings withdrawable.
func (s *BookingService) MarkCompleted(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.complete(ctx, bookingID, nil)
}

func (s *BookingService) complete(ctx context.Context, bookingID uuid.UUID, expectedVersion *int) (*models.Booking, error) {
	now := s.now()
	current, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, AccountLockKey(current.TeacherID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.Atomic(ctx, func(r Repos) error {
		b, err := r.Bookings().Get(ctx, bookingID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && b.Version != *expectedVersion {
			return fmt.Errorf("%w: booking %s is at version %d", ErrInvalidStateTransition, b.ID, b.Version)
		}
		if b.Status != models.BookingConfirmed {
			return fmt.Errorf("%w: booking %s is %s, cannot become %s", ErrInvalidStateTransition, b.ID, b.Status, models.BookingCompleted)
		}
		if now.Before(b.SlotEnd()) {
			return fmt.Errorf("%w: booking %s has not ended yet", ErrInvalidStateTransition, b.ID)
		}
		if err := s.transitionTx(ctx, r, b, models.BookingCompleted, now, nil); err != nil {
			return err
		}
		if err := s.ledger.ReleasePendingTx(ctx, r, b.TeacherID, b.TeacherEarnings(), b.ID); err != nil {
			return err
		}
		booking = b
		return enqueue(ctx, r, models.TopicBookingCompleted, b.ID, newBookingEvent(b), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking completed", zap.String("booking_id", booking.ID.String()))
	return booking, nil
}

// UpdateStatus is the actor-facing entry point for status changes. When
// expectedVersion is set the change is refused if the booking moved on since
// the caller read it, including moves that land while the change is being
// applied.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID uuid.UUID, next models.BookingStatus, actorID uuid.UUID, expectedVersion *int) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != b.Version {
		return nil, fmt.Errorf("%w: booking %s is at version %d", ErrInvalidStateTransition, b.ID, b.Version)
	}

	switch next {
	case models.BookingCancelled:
		return s.cancelAs(ctx, b, actorID)
	case models.BookingCompleted:
		if err := s.authorize(ctx, b, actorID, false); err != nil {
			return nil, err
		}
		return s.complete(ctx, bookingID, expectedVersion)
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	return nil, fmt.Errorf("%w: bookings cannot be moved to %s directly", ErrInvalidStateTransition, next)
}

// authorize lets the booking's teacher and admins act, and its student too
// when allowStudent is set.
func (s *BookingService) authorize(ctx context.Context, b *models.Booking, actorID uuid.UUID, allowStudent bool) error {
	if actorID == b.TeacherID || (allowStudent && actorID == b.StudentID) {
		return nil
	}
	actor, err := s.store.Users().Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: user %s is not a party to booking %s", ErrForbidden, actorID, b.ID)
	}
	return nil
}

func (s *BookingService) Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.store.Bookings().Get(ctx, bookingID)
}

func (s *BookingService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.store.Bookings().ListForUser(ctx, userID)
}

func (s *BookingService) Lesson(ctx context.Context, bookingID uuid.UUID) (*models.LessonRecord, error) {
	return s.store.Lessons().GetByBooking(ctx, bookingID)
}

// CompleteElapsed completes every confirmed booking whose slot has ended.
// Bookings that fail are logged and left for the next sweep.
func (s *BookingService) CompleteElapsed(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.store.Bookings().ListStartedBefore(ctx, models.BookingConfirmed, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, b := range candidates {
		if now.Before(b.SlotEnd()) {
			continue
		}
		if _, err := s.MarkCompleted(ctx, b.ID); err != nil {
			s.logger.Warn("auto-complete failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
			continue
		}
		completed++
	}
	return completed, nil
}

// ReconcilePending asks the gateway about external bookings whose payment
// deadline has passed and settles them.
func (s *BookingService) ReconcilePending(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.Bookings().ListPaymentsDue(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range due {
		b := &due[i]
		log := s.logger.With(zap.String("booking_id", b.ID.String()))
		status, err := s.gateway.Status(ctx, chargeRef(b))
		if err != nil {
			log.Warn("charge status unavailable", zap.Error(err))
			continue
		}
		switch status {
		case ChargeSucceeded, ChargeFailed:
			_, err = s.HandlePaymentResult(ctx, b.ID, status, "")
		default:
			if b.PaymentDeadline == nil || now.Before(b.PaymentDeadline.Add(s.cfg.ReconcileGrace)) {
				continue
			}
			_, err = s.voidCharge(ctx, b, nil)
		}
		if err != nil {
			log.Warn("reconciliation failed", zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

// SyncPayment asks the gateway for the outcome of a pending external
// charge, typically after the payer returns from the provider's approval
// page.
func (s *BookingService) SyncPayment(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, b, actorID, true); err != nil {
		return nil, err
	}
	if b.Status != models.BookingPending || !b.ExternallyPaid() {
		return b, nil
	}
	status, err := s.gateway.Status(ctx, chargeRef(b))
	if err != nil {
		return nil, err
	}
	if status == ChargePending {
		return b, nil
	}
	return s.HandlePaymentResult(ctx, b.ID, status, "")
}

func chargeRef(b *models.Booking) ChargeRef {
	ref := ChargeRef{CorrelationID: b.ID, Method: b.PaymentMethod}
	if b.PaymentRef != nil {
		ref.ProviderRef = *b.PaymentRef
	}
	return ref
}
