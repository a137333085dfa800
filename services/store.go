package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
)

// Store is the persistence boundary. Repositories obtained from the Store
// itself run each call on its own; repositories handed to an Atomic callback
// share one transaction.
type Store interface {
	Repos
	Atomic(ctx context.Context, fn func(r Repos) error) error
}

type Repos interface {
	Users() UserRepository
	Ledger() LedgerRepository
	Teachers() TeacherRepository
	Bookings() BookingRepository
	Lessons() LessonRepository
	Payouts() PayoutRepository
	Outbox() OutboxRepository
}

// Lookups return ErrNotFound when nothing matches. Inserts return
// ErrDuplicate on unique violations. Updates of versioned rows succeed only
// when the stored version equals the one on the struct, bump it on both
// sides, and otherwise return ErrStaleVersion.

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// LockForUpdate reads the user row under a row lock held until the
	// surrounding transaction ends.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type LedgerRepository interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
	Find(ctx context.Context, key models.EntryKey) (*models.LedgerEntry, error)
	// Sum totals an account's entries, restricted to the given buckets when
	// any are passed.
	Sum(ctx context.Context, accountID uuid.UUID, buckets ...models.Bucket) (decimal.Decimal, error)
	List(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
}

type TeacherRepository interface {
	Create(ctx context.Context, t *models.Teacher) error
	Get(ctx context.Context, userID uuid.UUID) (*models.Teacher, error)
	Update(ctx context.Context, t *models.Teacher) error
	ListByStatus(ctx context.Context, status models.ApprovalStatus) ([]models.Teacher, error)
	AddSlot(ctx context.Context, s *models.AvailabilitySlot) error
	Slots(ctx context.Context, teacherID uuid.UUID) ([]models.AvailabilitySlot, error)
}

type BookingRepository interface {
	Insert(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking) error
	// ListForUser returns bookings where the user is student or teacher,
	// ordered by slot start ascending.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	// ListLive returns the teacher's non-cancelled bookings whose slot
	// starts in [from, to).
	ListLive(ctx context.Context, teacherID uuid.UUID, from, to time.Time) ([]models.Booking, error)
	ListStartedBefore(ctx context.Context, status models.BookingStatus, before time.Time, limit int) ([]models.Booking, error)
	// ListPaymentsDue returns pending externally paid bookings whose payment
	// deadline is at or before now.
	ListPaymentsDue(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
}

type LessonRepository interface {
	Create(ctx context.Context, l *models.LessonRecord) error
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.LessonRecord, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *models.PayoutRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	Update(ctx context.Context, p *models.PayoutRequest) error
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.PayoutRequest, error)
	ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, m *models.OutboxMessage) error
	ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordFailure bumps the retry count and moves the message to failed
	// once giveUp is set.
	RecordFailure(ctx context.Context, id uuid.UUID, giveUp bool, at time.Time) error
}
