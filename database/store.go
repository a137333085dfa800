package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

// Store is the services.Store backed by gorm. Atomic maps onto a database
// transaction; account rows are locked FOR UPDATE on Postgres, while SQLite
// already serializes writers.
type Store struct {
	db *gorm.DB
}

var _ services.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(r services.Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos{db: tx})
	})
}

func (s *Store) Users() services.UserRepository       { return repos{s.db}.Users() }
func (s *Store) Ledger() services.LedgerRepository    { return repos{s.db}.Ledger() }
func (s *Store) Teachers() services.TeacherRepository { return repos{s.db}.Teachers() }
func (s *Store) Bookings() services.BookingRepository { return repos{s.db}.Bookings() }
func (s *Store) Lessons() services.LessonRepository   { return repos{s.db}.Lessons() }
func (s *Store) Payouts() services.PayoutRepository   { return repos{s.db}.Payouts() }
func (s *Store) Outbox() services.OutboxRepository    { return repos{s.db}.Outbox() }

type repos struct {
	db *gorm.DB
}

func (r repos) Users() services.UserRepository       { return userRepo(r) }
func (r repos) Ledger() services.LedgerRepository    { return ledgerRepo(r) }
func (r repos) Teachers() services.TeacherRepository { return teacherRepo(r) }
func (r repos) Bookings() services.BookingRepository { return bookingRepo(r) }
func (r repos) Lessons() services.LessonRepository   { return lessonRepo(r) }
func (r repos) Payouts() services.PayoutRepository   { return payoutRepo(r) }
func (r repos) Outbox() services.OutboxRepository    { return outboxRepo(r) }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return services.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", services.ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// versioned runs a compare-and-swap update and tells a missing row apart
// from a stale one.
func versioned(ctx context.Context, db *gorm.DB, model any, where string, id any, version int, values map[string]any) error {
	values["version"] = version + 1
	res := db.WithContext(ctx).Model(model).Where(where+" = ? AND version = ?", id, version).Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := db.WithContext(ctx).Model(model).Where(where+" = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return services.ErrNotFound
	}
	return services.ErrStaleVersion
}

// limited applies limit when positive; zero means no limit.
func limited(limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			return db.Limit(limit)
		}
		return db
	}
}

type userRepo repos

func (r userRepo) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r userRepo) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r userRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var u models.User
	if err := q.First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

type ledgerRepo repos

func (r ledgerRepo) Append(ctx context.Context, e *models.LedgerEntry) error {
	return translate(r.db.WithContext(ctx).Create(e).Error)
}

func (r ledgerRepo) Find(ctx context.Context, key models.EntryKey) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND correlation_id = ? AND kind = ? AND bucket = ?", key.AccountID, key.CorrelationID, string(key.Kind), string(key.Bucket)).
		First(&e).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r ledgerRepo) Sum(ctx context.Context, accountID uuid.UUID, buckets ...models.Bucket) (decimal.Decimal, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).Where("account_id = ?", accountID)
	if len(buckets) > 0 {
		names := make([]string, len(buckets))
		for i, b := range buckets {
			names[i] = string(b)
		}
		q = q.Where("bucket IN ?", names)
	}
	var total decimal.NullDecimal
	if err := q.Select("COALESCE(SUM(amount), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total.Decimal.Round(2), nil
}

func (r ledgerRepo) List(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	return entries, err
}

type teacherRepo repos

func (r teacherRepo) Create(ctx context.Context, t *models.Teacher) error {
	return translate(r.db.WithContext(ctx).Create(t).Error)
}

func (r teacherRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Teacher, error) {
	var t models.Teacher
	if err := r.db.WithContext(ctx).First(&t, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r teacherRepo) Update(ctx context.Context, t *models.Teacher) error {
	err := versioned(ctx, r.db, &models.Teacher{}, "user_id", t.UserID, t.Version, map[string]any{
		"status":           string(t.Status),
		"headline":         t.Headline,
		"bio":              t.Bio,
		"price_per_lesson": t.PricePerLesson,
		"reviewer_id":      t.ReviewerID,
		"review_note":      t.ReviewNote,
		"submitted_at":     t.SubmittedAt,
		"decided_at":       t.DecidedAt,
		"updated_at":       t.UpdatedAt,
	})
	if err == nil {
		t.Version++
	}
	return err
}

func (r teacherRepo) ListByStatus(ctx context.Context, status models.ApprovalStatus) ([]models.Teacher, error) {
	var teachers []models.Teacher
	err := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at asc").Find(&teachers).Error
	return teachers, err
}

func (r teacherRepo) AddSlot(ctx context.Context, s *models.AvailabilitySlot) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r teacherRepo) Slots(ctx context.Context, teacherID uuid.UUID) ([]models.AvailabilitySlot, error) {
	var slots []models.AvailabilitySlot
	err := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("start_time asc").Find(&slots).Error
	return slots, err
}

type bookingRepo repos

func (r bookingRepo) Insert(ctx context.Context, b *models.Booking) error {
	return translate(r.db.WithContext(ctx).Create(b).Error)
}

func (r bookingRepo) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r bookingRepo) Update(ctx context.Context, b *models.Booking) error {
	err := versioned(ctx, r.db, &models.Booking{}, "id", b.ID, b.Version, map[string]any{
		"status":           string(b.Status),
		"paid":             b.Paid,
		"payment_ref":      b.PaymentRef,
		"payment_url":      b.PaymentURL,
		"payment_deadline": b.PaymentDeadline,
		"cancelled_by":     b.CancelledBy,
		"updated_at":       b.UpdatedAt,
	})
	if err == nil {
		b.Version++
	}
	return err
}

func (r bookingRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("student_id = ? OR teacher_id = ?", userID, userID).
		Order("slot_start asc, id asc").
		Find(&bookings).Error
	return bookings, err
}

func (r bookingRepo) ListLive(ctx context.Context, teacherID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND status <> ? AND slot_start >= ? AND slot_start < ?", teacherID, string(models.BookingCancelled), from, to).
		Order("slot_start asc").
		Find(&bookings).Error
	return bookings, err
}

func (r bookingRepo) ListStartedBefore(ctx context.Context, status models.BookingStatus, before time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND slot_start <= ?", string(status), before).
		Order("slot_start asc").
		Scopes(limited(limit)).
		Find(&bookings).Error
	return bookings, err
}

func (r bookingRepo) ListPaymentsDue(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method <> ? AND payment_deadline <= ?", string(models.BookingPending), string(models.PaymentWallet), now).
		Order("payment_deadline asc").
		Scopes(limited(limit)).
		Find(&bookings).Error
	return bookings, err
}

type lessonRepo repos

func (r lessonRepo) Create(ctx context.Context, l *models.LessonRecord) error {
	return translate(r.db.WithContext(ctx).Create(l).Error)
}

func (r lessonRepo) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.LessonRecord, error) {
	var l models.LessonRecord
	if err := r.db.WithContext(ctx).First(&l, "booking_id = ?", bookingID).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

type payoutRepo repos

func (r payoutRepo) Create(ctx context.Context, p *models.PayoutRequest) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r payoutRepo) Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r payoutRepo) Update(ctx context.Context, p *models.PayoutRequest) error {
	err := versioned(ctx, r.db, &models.PayoutRequest{}, "id", p.ID, p.Version, map[string]any{
		"status":       string(p.Status),
		"reviewer_id":  p.ReviewerID,
		"admin_notes":  p.AdminNotes,
		"external_ref": p.ExternalRef,
		"processed_at": p.ProcessedAt,
		"completed_at": p.CompletedAt,
	})
	if err == nil {
		p.Version++
	}
	return err
}

func (r payoutRepo) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.PayoutRequest, error) {
	var payouts []models.PayoutRequest
	err := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID).Order("requested_at asc").Find(&payouts).Error
	return payouts, err
}

func (r payoutRepo) ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	var payouts []models.PayoutRequest
	err := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("requested_at asc").Find(&payouts).Error
	return payouts, err
}

type outboxRepo repos

func (r outboxRepo) Create(ctx context.Context, m *models.OutboxMessage) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r outboxRepo) ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", string(models.OutboxPending)).
		Order("created_at asc").
		Scopes(limited(limit)).
		Find(&messages).Error
	return messages, err
}

func (r outboxRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, map[string]any{"status": string(models.OutboxSent), "updated_at": at})
}

func (r outboxRepo) RecordFailure(ctx context.Context, id uuid.UUID, giveUp bool, at time.Time) error {
	values := map[string]any{"retry_count": gorm.Expr("retry_count + 1"), "updated_at": at}
	if giveUp {
		values["status"] = string(models.OutboxFailed)
	}
	return r.update(ctx, id, values)
}

func (r outboxRepo) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}
