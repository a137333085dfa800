package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/anjiri1684/tutor_marketplace/database/memstore"
	"github.com/anjiri1684/tutor_marketplace/lock"
	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeGateway answers from canned results. Every method records its calls.
type fakeGateway struct {
	mu            sync.Mutex
	initiateErr   error
	initiateState services.ChargeStatus
	status        services.ChargeStatus
	statusErr     error
	cancelErr     error
	initiated     int
	cancelled     int
}

func (g *fakeGateway) InitiateCharge(_ context.Context, req services.ChargeRequest) (*services.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiated++
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	state := g.initiateState
	if state == "" {
		state = services.ChargePending
	}
	return &services.ChargeResult{ProviderRef: "ref-" + req.CorrelationID.String(), Status: state}, nil
}

func (g *fakeGateway) Status(context.Context, services.ChargeRef) (services.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.statusErr
}

func (g *fakeGateway) Cancel(context.Context, services.ChargeRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled++
	return g.cancelErr
}

func (g *fakeGateway) calls() (initiated, cancelled int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initiated, g.cancelled
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	clock    *testClock
	gateway  *fakeGateway
	ledger   *services.LedgerService
	approval *services.ApprovalService
	bookings *services.BookingService
	payouts  *services.PayoutService
	accounts *services.AccountService

	admin   uuid.UUID
	student uuid.UUID
	teacher uuid.UUID
}

// newFixture starts at 12:00 with an admin, a student holding $100 and an
// approved teacher charging $25 per hour who is available 14:00-20:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   memstore.New(),
		clock:   &testClock{now: at(12, 0)},
		gateway: &fakeGateway{},
	}
	locker := lock.NewKeyedMutex()
	cfg := services.DefaultBookingConfig()
	cfg.GatewayRetries = 2
	cfg.GatewayBackoff = time.Millisecond

	f.ledger = services.NewLedgerService(f.store, locker, f.clock.Now, logger)
	f.approval = services.NewApprovalService(f.store, f.clock.Now, logger)
	f.bookings = services.NewBookingService(f.store, f.ledger, f.gateway, locker, f.clock.Now, cfg, logger)
	f.payouts = services.NewPayoutService(f.store, f.ledger, locker, f.clock.Now, "USD", logger)
	f.accounts = services.NewAccountService(f.store, f.approval, f.clock.Now, "USD", logger)
	f.accounts.PasswordCost = bcrypt.MinCost

	admin, err := f.accounts.EnsureAdmin(f.ctx, "Site Admin", "admin@example.com", "secret-admin")
	require.NoError(t, err)
	f.admin = admin.ID

	f.student = f.newStudent("student@example.com", "100.00")
	f.teacher = f.newApprovedTeacher("teacher@example.com", "25.00")
	return f
}

func (f *fixture) newStudent(email, funds string) uuid.UUID {
	f.t.Helper()
	u, err := f.accounts.Register(f.ctx, services.Registration{FullName: "Student", Email: email, Password: "password", Role: models.RoleStudent})
	require.NoError(f.t, err)
	if funds != "" {
		_, err = f.ledger.Credit(f.ctx, u.ID, dec(funds), uuid.New(), models.EntryCredit, models.BucketAvailable)
		require.NoError(f.t, err)
	}
	return u.ID
}

func (f *fixture) newTeacher(email string) uuid.UUID {
	f.t.Helper()
	u, err := f.accounts.Register(f.ctx, services.Registration{FullName: "Teacher", Email: email, Password: "password", Role: models.RoleTeacher})
	require.NoError(f.t, err)
	return u.ID
}

func (f *fixture) newApprovedTeacher(email, price string) uuid.UUID {
	f.t.Helper()
	id := f.newTeacher(email)
	_, err := f.approval.SubmitApplication(f.ctx, id, services.Application{Headline: "Conversational Spanish", PricePerLesson: dec(price)})
	require.NoError(f.t, err)
	_, err = f.approval.Decide(f.ctx, id, models.ApprovalApproved, f.admin, "")
	require.NoError(f.t, err)
	_, err = f.approval.AddAvailability(f.ctx, id, at(14, 0), at(20, 0))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) book(student uuid.UUID, start time.Time, method models.PaymentMethod) (*models.Booking, error) {
	return f.bookings.RequestBooking(f.ctx, services.BookingRequest{
		StudentID:       student,
		TeacherID:       f.teacher,
		SlotStart:       start,
		DurationMinutes: 60,
		PaymentMethod:   method,
	})
}

func (f *fixture) balances(account uuid.UUID) services.Balances {
	f.t.Helper()
	b, err := f.ledger.Balances(f.ctx, account)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) requireAmount(want string, got decimal.Decimal, msg string) {
	f.t.Helper()
	require.Truef(f.t, dec(want).Equal(got), "%s: want %s, got %s", msg, want, got.StringFixed(2))
}

func (f *fixture) topics() []string {
	var out []string
	for _, m := range f.store.Messages() {
		out = append(out, m.Topic)
	}
	return out
}

// interleavedStore runs between once after the first booking read made
// outside a transaction, imitating a concurrent writer.
type interleavedStore struct {
	*memstore.Store
	between func()
	fired   bool
}

func (s *interleavedStore) Bookings() services.BookingRepository {
	return interleavedBookings{BookingRepository: s.Store.Bookings(), store: s}
}

type interleavedBookings struct {
	services.BookingRepository
	store *interleavedStore
}

func (r interleavedBookings) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := r.BookingRepository.Get(ctx, id)
	if err == nil && !r.store.fired && r.store.between != nil {
		r.store.fired = true
		r.store.between()
	}
	return b, err
}

// bookingsOver builds a booking service sharing the fixture's ledger and
// gateway on top of store. A nil locker gets a fresh KeyedMutex.
func (f *fixture) bookingsOver(store services.Store, locker services.Locker) *services.BookingService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	cfg := services.DefaultBookingConfig()
	cfg.GatewayRetries = 2
	cfg.GatewayBackoff = time.Millisecond
	return services.NewBookingService(store, f.ledger, f.gateway, locker, f.clock.Now, cfg, zap.NewNop())
}

// recordingLocker notes every key set it is asked for.
type recordingLocker struct {
	services.Locker
	mu    sync.Mutex
	calls [][]string
}

func (l *recordingLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	l.mu.Lock()
	l.calls = append(l.calls, append([]string(nil), keys...))
	l.mu.Unlock()
	return l.Locker.Lock(ctx, keys...)
}

func (l *recordingLocker) requested(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, keys := range l.calls {
		for _, k := range keys {
			if k == key {
				return true
			}
		}
	}
	return false
}
