package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

func TestChargeDebitsAvailableFunds(t *testing.T) {
	f := newFixture(t)

	entry, err := f.ledger.Charge(f.ctx, f.student, dec("40"), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.EntryCharge, entry.Kind)
	f.requireAmount("-40", entry.Amount, "entry amount")
	f.requireAmount("60", f.balances(f.student).Available, "available")
}

func TestChargeRejectsOverdraw(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Charge(f.ctx, f.student, dec("100.01"), uuid.New())
	require.ErrorIs(t, err, services.ErrInsufficientFunds)

	entries, err := f.ledger.Entries(f.ctx, f.student)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	f.requireAmount("100", f.balances(f.student).Total, "total")
}

func TestChargeIsIdempotentOnCorrelationID(t *testing.T) {
	f := newFixture(t)
	correlation := uuid.New()

	first, err := f.ledger.Charge(f.ctx, f.student, dec("30"), correlation)
	require.NoError(t, err)
	second, err := f.ledger.Charge(f.ctx, f.student, dec("30"), correlation)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	f.requireAmount("70", f.balances(f.student).Available, "available")
}

func TestChargeRejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []string{"0", "-5"} {
		_, err := f.ledger.Charge(f.ctx, f.student, dec(amount), uuid.New())
		assert.ErrorIs(t, err, services.ErrInvalidInput, amount)
	}
}

func TestChargeUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Charge(f.ctx, uuid.New(), dec("1"), uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestConcurrentChargesNeverOverdraw(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Charge(f.ctx, f.student, dec("30"), uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, services.ErrInsufficientFunds):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, refused)
	f.requireAmount("10", f.balances(f.student).Available, "available")
}

func TestCreditBucketsAndRelease(t *testing.T) {
	f := newFixture(t)
	lesson := uuid.New()

	_, err := f.ledger.Credit(f.ctx, f.teacher, dec("21.25"), lesson, models.EntryCredit, models.BucketPending)
	require.NoError(t, err)
	b := f.balances(f.teacher)
	f.requireAmount("21.25", b.Pending, "pending")
	f.requireAmount("0", b.Available, "available")

	_, err = f.ledger.ReserveForPayout(f.ctx, f.teacher, dec("1"), uuid.New())
	require.ErrorIs(t, err, services.ErrInsufficientFunds, "pending funds are not withdrawable")

	err = f.store.Atomic(f.ctx, func(r services.Repos) error {
		return f.ledger.ReleasePendingTx(f.ctx, r, f.teacher, dec("21.25"), lesson)
	})
	require.NoError(t, err)

	b = f.balances(f.teacher)
	f.requireAmount("0", b.Pending, "pending")
	f.requireAmount("21.25", b.Available, "available")
	f.requireAmount("21.25", b.Total, "total")

	entries, err := f.ledger.Entries(f.ctx, f.teacher)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCreditRejectsDebitKinds(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Credit(f.ctx, f.student, dec("5"), uuid.New(), models.EntryCharge, models.BucketAvailable)
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestFailedTransactionLeavesNoEntries(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.store.Atomic(f.ctx, func(r services.Repos) error {
		if _, err := f.ledger.ChargeTx(f.ctx, r, f.student, dec("50"), uuid.New()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	f.requireAmount("100", f.balances(f.student).Available, "available")
}

// staleLookup hides existing ledger entries from Find, the view of a writer
// that checked before a concurrent writer committed.
type staleLookup struct{ services.Repos }

func (r staleLookup) Ledger() services.LedgerRepository {
	return staleLedger{r.Repos.Ledger()}
}

type staleLedger struct{ services.LedgerRepository }

func (staleLedger) Find(context.Context, models.EntryKey) (*models.LedgerEntry, error) {
	return nil, services.ErrNotFound
}

func TestLostAppendRaceReturnsDuplicate(t *testing.T) {
	f := newFixture(t)
	lesson := uuid.New()
	_, err := f.ledger.Credit(f.ctx, f.teacher, dec("21.25"), lesson, models.EntryCredit, models.BucketPending)
	require.NoError(t, err)

	err = f.store.Atomic(f.ctx, func(r services.Repos) error {
		_, err := f.ledger.CreditTx(f.ctx, staleLookup{r}, f.teacher, dec("21.25"), lesson, models.EntryCredit, models.BucketPending)
		return err
	})
	require.ErrorIs(t, err, services.ErrDuplicate)

	f.requireAmount("21.25", f.balances(f.teacher).Pending, "only the winner's entry counts")
	entries, err := f.ledger.Entries(f.ctx, f.teacher)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
