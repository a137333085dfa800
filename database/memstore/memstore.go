// Package memstore is an in-process services.Store. Atomic serializes all
// work behind one mutex and restores a snapshot when the callback fails.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

type state struct {
	users    map[uuid.UUID]models.User
	entries  []models.LedgerEntry
	teachers map[uuid.UUID]models.Teacher
	slots    []models.AvailabilitySlot
	bookings map[uuid.UUID]models.Booking
	lessons  map[uuid.UUID]models.LessonRecord
	payouts  map[uuid.UUID]models.PayoutRequest
	outbox   []models.OutboxMessage
}

func (s *state) clone() *state {
	return &state{
		users:    maps.Clone(s.users),
		entries:  slices.Clone(s.entries),
		teachers: maps.Clone(s.teachers),
		slots:    slices.Clone(s.slots),
		bookings: maps.Clone(s.bookings),
		lessons:  maps.Clone(s.lessons),
		payouts:  maps.Clone(s.payouts),
		outbox:   slices.Clone(s.outbox),
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ services.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		users:    map[uuid.UUID]models.User{},
		teachers: map[uuid.UUID]models.Teacher{},
		bookings: map[uuid.UUID]models.Booking{},
		lessons:  map[uuid.UUID]models.LessonRecord{},
		payouts:  map[uuid.UUID]models.PayoutRequest{},
	}}
}

func (s *Store) Atomic(ctx context.Context, fn func(r services.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(repos{handle{st: s.st}}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Users() services.UserRepository       { return userRepo{handle{store: s}} }
func (s *Store) Ledger() services.LedgerRepository    { return ledgerRepo{handle{store: s}} }
func (s *Store) Teachers() services.TeacherRepository { return teacherRepo{handle{store: s}} }
func (s *Store) Bookings() services.BookingRepository { return bookingRepo{handle{store: s}} }
func (s *Store) Lessons() services.LessonRepository   { return lessonRepo{handle{store: s}} }
func (s *Store) Payouts() services.PayoutRepository   { return payoutRepo{handle{store: s}} }
func (s *Store) Outbox() services.OutboxRepository    { return outboxRepo{handle{store: s}} }

// handle gives repositories their state. Outside a transaction it points at
// the store and takes the mutex per call; inside Atomic it carries the state
// directly because the mutex is already held.
type handle struct {
	store *Store
	st    *state
}

func (h handle) do(fn func(st *state) error) error {
	if h.store == nil {
		return fn(h.st)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.st)
}

type repos struct{ h handle }

func (r repos) Users() services.UserRepository       { return userRepo{r.h} }
func (r repos) Ledger() services.LedgerRepository    { return ledgerRepo{r.h} }
func (r repos) Teachers() services.TeacherRepository { return teacherRepo{r.h} }
func (r repos) Bookings() services.BookingRepository { return bookingRepo{r.h} }
func (r repos) Lessons() services.LessonRepository   { return lessonRepo{r.h} }
func (r repos) Payouts() services.PayoutRepository   { return payoutRepo{r.h} }
func (r repos) Outbox() services.OutboxRepository    { return outboxRepo{r.h} }

type userRepo struct{ handle }

func (r userRepo) Create(_ context.Context, u *models.User) error {
	return r.do(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return services.ErrDuplicate
		}
		for _, other := range st.users {
			if strings.EqualFold(other.Email, u.Email) {
				return services.ErrDuplicate
			}
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	err := r.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return services.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.do(func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				out = &u
				return nil
			}
		}
		return services.ErrNotFound
	})
	return out, err
}

func (r userRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.Get(ctx, id)
}

type ledgerRepo struct{ handle }

func (r ledgerRepo) Append(_ context.Context, e *models.LedgerEntry) error {
	return r.do(func(st *state) error {
		key := e.Key()
		for _, existing := range st.entries {
			if existing.Key() == key {
				return services.ErrDuplicate
			}
		}
		st.entries = append(st.entries, *e)
		return nil
	})
}

func (r ledgerRepo) Find(_ context.Context, key models.EntryKey) (*models.LedgerEntry, error) {
	var out *models.LedgerEntry
	err := r.do(func(st *state) error {
		for _, e := range st.entries {
			if e.Key() == key {
				out = &e
				return nil
			}
		}
		return services.ErrNotFound
	})
	return out, err
}

func (r ledgerRepo) Sum(_ context.Context, accountID uuid.UUID, buckets ...models.Bucket) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.do(func(st *state) error {
		for _, e := range st.entries {
			if e.AccountID != accountID {
				continue
			}
			if len(buckets) > 0 && !slices.Contains(buckets, e.Bucket) {
				continue
			}
			total = total.Add(e.Amount)
		}
		return nil
	})
	return total.Round(2), err
}

func (r ledgerRepo) List(_ context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	err := r.do(func(st *state) error {
		for _, e := range st.entries {
			if e.AccountID == accountID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

type teacherRepo struct{ handle }

func (r teacherRepo) Create(_ context.Context, t *models.Teacher) error {
	return r.do(func(st *state) error {
		if _, ok := st.teachers[t.UserID]; ok {
			return services.ErrDuplicate
		}
		st.teachers[t.UserID] = *t
		return nil
	})
}

func (r teacherRepo) Get(_ context.Context, userID uuid.UUID) (*models.Teacher, error) {
	var out *models.Teacher
	err := r.do(func(st *state) error {
		t, ok := st.teachers[userID]
		if !ok {
			return services.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r teacherRepo) Update(_ context.Context, t *models.Teacher) error {
	return r.do(func(st *state) error {
		stored, ok := st.teachers[t.UserID]
		if !ok {
			return services.ErrNotFound
		}
		if stored.Version != t.Version {
			return services.ErrStaleVersion
		}
		t.Version++
		st.teachers[t.UserID] = *t
		return nil
	})
}

func (r teacherRepo) ListByStatus(_ context.Context, status models.ApprovalStatus) ([]models.Teacher, error) {
	var out []models.Teacher
	err := r.do(func(st *state) error {
		for _, t := range st.teachers {
			if t.Status == status {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r teacherRepo) AddSlot(_ context.Context, s *models.AvailabilitySlot) error {
	return r.do(func(st *state) error {
		st.slots = append(st.slots, *s)
		return nil
	})
}

func (r teacherRepo) Slots(_ context.Context, teacherID uuid.UUID) ([]models.AvailabilitySlot, error) {
	var out []models.AvailabilitySlot
	err := r.do(func(st *state) error {
		for _, s := range st.slots {
			if s.TeacherID == teacherID {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

type bookingRepo struct{ handle }

func (r bookingRepo) Insert(_ context.Context, b *models.Booking) error {
	return r.do(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return services.ErrDuplicate
		}
		if b.Status != models.BookingCancelled {
			for _, other := range st.bookings {
				if other.TeacherID == b.TeacherID && other.SlotStart.Equal(b.SlotStart) && other.Status != models.BookingCancelled {
					return services.ErrDuplicate
				}
			}
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r bookingRepo) Get(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	var out *models.Booking
	err := r.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return services.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r bookingRepo) Update(_ context.Context, b *models.Booking) error {
	return r.do(func(st *state) error {
		stored, ok := st.bookings[b.ID]
		if !ok {
			return services.ErrNotFound
		}
		if stored.Version != b.Version {
			return services.ErrStaleVersion
		}
		b.Version++
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r bookingRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.StudentID == userID || b.TeacherID == userID
	}, 0)
}

func (r bookingRepo) ListLive(_ context.Context, teacherID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.TeacherID == teacherID && b.Status != models.BookingCancelled &&
			!b.SlotStart.Before(from) && b.SlotStart.Before(to)
	}, 0)
}

func (r bookingRepo) ListStartedBefore(_ context.Context, status models.BookingStatus, before time.Time, limit int) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.Status == status && !b.SlotStart.After(before)
	}, limit)
}

func (r bookingRepo) ListPaymentsDue(_ context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingPending && b.ExternallyPaid() &&
			b.PaymentDeadline != nil && !b.PaymentDeadline.After(now)
	}, limit)
}

func (r bookingRepo) filter(keep func(models.Booking) bool, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := r.do(func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SlotStart.Equal(out[j].SlotStart) {
			return out[i].SlotStart.Before(out[j].SlotStart)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type lessonRepo struct{ handle }

func (r lessonRepo) Create(_ context.Context, l *models.LessonRecord) error {
	return r.do(func(st *state) error {
		if _, ok := st.lessons[l.BookingID]; ok {
			return services.ErrDuplicate
		}
		st.lessons[l.BookingID] = *l
		return nil
	})
}

func (r lessonRepo) GetByBooking(_ context.Context, bookingID uuid.UUID) (*models.LessonRecord, error) {
	var out *models.LessonRecord
	err := r.do(func(st *state) error {
		l, ok := st.lessons[bookingID]
		if !ok {
			return services.ErrNotFound
		}
		out = &l
		return nil
	})
	return out, err
}

type payoutRepo struct{ handle }

func (r payoutRepo) Create(_ context.Context, p *models.PayoutRequest) error {
	return r.do(func(st *state) error {
		if _, ok := st.payouts[p.ID]; ok {
			return services.ErrDuplicate
		}
		st.payouts[p.ID] = *p
		return nil
	})
}

func (r payoutRepo) Get(_ context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var out *models.PayoutRequest
	err := r.do(func(st *state) error {
		p, ok := st.payouts[id]
		if !ok {
			return services.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r payoutRepo) Update(_ context.Context, p *models.PayoutRequest) error {
	return r.do(func(st *state) error {
		stored, ok := st.payouts[p.ID]
		if !ok {
			return services.ErrNotFound
		}
		if stored.Version != p.Version {
			return services.ErrStaleVersion
		}
		p.Version++
		st.payouts[p.ID] = *p
		return nil
	})
}

func (r payoutRepo) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.PayoutRequest, error) {
	return r.filter(func(p models.PayoutRequest) bool { return p.TeacherID == teacherID })
}

func (r payoutRepo) ListByStatus(_ context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	return r.filter(func(p models.PayoutRequest) bool { return p.Status == status })
}

func (r payoutRepo) filter(keep func(models.PayoutRequest) bool) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	err := r.do(func(st *state) error {
		for _, p := range st.payouts {
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, err
}

type outboxRepo struct{ handle }

func (r outboxRepo) Create(_ context.Context, m *models.OutboxMessage) error {
	return r.do(func(st *state) error {
		st.outbox = append(st.outbox, *m)
		return nil
	})
}

func (r outboxRepo) ListPending(_ context.Context, limit int) ([]models.OutboxMessage, error) {
	var out []models.OutboxMessage
	err := r.do(func(st *state) error {
		for _, m := range st.outbox {
			if m.Status != models.OutboxPending {
				continue
			}
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r outboxRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxSent
		m.UpdatedAt = at
	})
}

func (r outboxRepo) RecordFailure(_ context.Context, id uuid.UUID, giveUp bool, at time.Time) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.RetryCount++
		if giveUp {
			m.Status = models.OutboxFailed
		}
		m.UpdatedAt = at
	})
}

func (r outboxRepo) update(id uuid.UUID, apply func(*models.OutboxMessage)) error {
	return r.do(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				apply(&st.outbox[i])
				return nil
			}
		}
		return services.ErrNotFound
	})
}

// Messages returns a copy of every queued outbox message, oldest first.
func (s *Store) Messages() []models.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.outbox)
}
