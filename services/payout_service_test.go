package services_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

func fundTeacher(f *fixture, amount string) {
	f.t.Helper()
	_, err := f.ledger.Credit(f.ctx, f.teacher, dec(amount), uuid.New(), models.EntryCredit, models.BucketAvailable)
	require.NoError(f.t, err)
}

func TestPayoutCannotExceedWithdrawable(t *testing.T) {
	f := newFixture(t)
	fundTeacher(f, "50")

	_, err := f.payouts.RequestPayout(f.ctx, f.teacher, services.PayoutInput{Amount: dec("80"), Method: models.PayoutBankTransfer, Destination: "KE-0001"})
	require.ErrorIs(t, err, services.ErrInsufficientFunds)

	list, err := f.payouts.ListForTeacher(f.ctx, f.teacher)
	require.NoError(t, err)
	assert.Empty(t, list)
	f.requireAmount("50", f.balances(f.teacher).Available, "withdrawable")
}

func TestPayoutRejectionRestoresFunds(t *testing.T) {
	f := newFixture(t)
	fundTeacher(f, "50")

	p, err := f.payouts.RequestPayout(f.ctx, f.teacher, services.PayoutInput{Amount: dec("50"), Method: models.PayoutMpesa, Destination: "254700000000"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, p.Status)
	f.requireAmount("0", f.balances(f.teacher).Available, "reserved")

	p, err = f.payouts.Review(f.ctx, p.ID, models.PayoutRejected, f.admin, "account mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRejected, p.Status)
	require.NotNil(t, p.ProcessedAt)
	f.requireAmount("50", f.balances(f.teacher).Available, "restored")

	_, err = f.payouts.Review(f.ctx, p.ID, models.PayoutApproved, f.admin, "")
	assert.ErrorIs(t, err, services.ErrInvalidStateTransition)
}

func TestPayoutApproveAndComplete(t *testing.T) {
	f := newFixture(t)
	fundTeacher(f, "50")

	p, err := f.payouts.RequestPayout(f.ctx, f.teacher, services.PayoutInput{Amount: dec("30"), Method: models.PayoutPayPal, Destination: "teacher@example.com"})
	require.NoError(t, err)

	_, err = f.payouts.Complete(f.ctx, p.ID, "PP-1")
	require.ErrorIs(t, err, services.ErrInvalidStateTransition, "must be approved first")

	p, err = f.payouts.Review(f.ctx, p.ID, models.PayoutApproved, f.admin, "")
	require.NoError(t, err)
	p, err = f.payouts.Complete(f.ctx, p.ID, "PP-1")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, p.Status)
	require.NotNil(t, p.ExternalRef)
	assert.Equal(t, "PP-1", *p.ExternalRef)

	f.requireAmount("20", f.balances(f.teacher).Available, "remaining")
	topics := f.topics()
	assert.Contains(t, topics, models.TopicPayoutApproved)
	assert.Contains(t, topics, models.TopicPayoutCompleted)

	pending, err := f.payouts.ListByStatus(f.ctx, models.PayoutCompleted)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPayoutValidation(t *testing.T) {
	f := newFixture(t)
	fundTeacher(f, "50")

	cases := []services.PayoutInput{
		{Amount: dec("0"), Method: models.PayoutPayPal, Destination: "x"},
		{Amount: dec("10"), Method: "cheque", Destination: "x"},
		{Amount: dec("10"), Method: models.PayoutPayPal, Destination: " "},
	}
	for _, in := range cases {
		_, err := f.payouts.RequestPayout(f.ctx, f.teacher, in)
		assert.ErrorIs(t, err, services.ErrInvalidInput)
	}

	_, err := f.payouts.RequestPayout(f.ctx, f.student, services.PayoutInput{Amount: dec("10"), Method: models.PayoutPayPal, Destination: "x"})
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = f.payouts.Review(f.ctx, uuid.New(), models.PayoutApproved, f.admin, "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestPendingEarningsAreNotWithdrawable(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(f.student, at(15, 0), models.PaymentWallet)
	require.NoError(t, err)

	_, err = f.payouts.RequestPayout(f.ctx, f.teacher, services.PayoutInput{Amount: dec("21.25"), Method: models.PayoutPayPal, Destination: "t@example.com"})
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)
}

func TestConcurrentPayoutsNeverExceedWithdrawable(t *testing.T) {
	f := newFixture(t)
	fundTeacher(f, "21.25")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payouts.RequestPayout(f.ctx, f.teacher, services.PayoutInput{Amount: dec("21.25"), Method: models.PayoutBankTransfer, Destination: "KE-0001"})
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

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, refused)
	f.requireAmount("0", f.balances(f.teacher).Available, "withdrawable")

	list, err := f.payouts.ListForTeacher(f.ctx, f.teacher)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
