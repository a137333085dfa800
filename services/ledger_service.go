package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anjiri1684/tutor_marketplace/models"
)

// LedgerService owns every balance-changing operation. The plain methods
// take the account lock and open their own transaction. The Tx variants run
// inside a caller's transaction and expect the caller to hold the account
// lock already.
type LedgerService struct {
	store  Store
	locker Locker
	now    Clock
	logger *zap.Logger
}

func NewLedgerService(store Store, locker Locker, now Clock, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, locker: locker, now: now, logger: logger.Named("ledger")}
}

type Balances struct {
	Total     decimal.Decimal `json:"total"`
	Pending   decimal.Decimal `json:"pending"`
	Available decimal.Decimal `json:"available"`
}

func (l *LedgerService) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return l.store.Ledger().Sum(ctx, accountID)
}

func (l *LedgerService) Withdrawable(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return l.store.Ledger().Sum(ctx, accountID, models.BucketAvailable)
}

func (l *LedgerService) Pending(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return l.store.Ledger().Sum(ctx, accountID, models.BucketPending)
}

func (l *LedgerService) Balances(ctx context.Context, accountID uuid.UUID) (Balances, error) {
	var b Balances
	var err error
	if b.Pending, err = l.Pending(ctx, accountID); err != nil {
		return b, err
	}
	if b.Available, err = l.Withdrawable(ctx, accountID); err != nil {
		return b, err
	}
	b.Total = b.Pending.Add(b.Available)
	return b, nil
}

func (l *LedgerService) Entries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	return l.store.Ledger().List(ctx, accountID)
}

// Charge debits the account's available funds. Replaying a correlation id
// returns the entry written the first time.
func (l *LedgerService) Charge(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	return l.locked(ctx, accountID, func(r Repos) (*models.LedgerEntry, error) {
		return l.ChargeTx(ctx, r, accountID, amount, correlationID)
	})
}

func (l *LedgerService) ChargeTx(ctx context.Context, r Repos, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	return l.debit(ctx, r, models.EntryCharge, accountID, amount, correlationID)
}

// ReserveForPayout moves withdrawable funds out of the account ahead of an
// external transfer.
func (l *LedgerService) ReserveForPayout(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	return l.locked(ctx, accountID, func(r Repos) (*models.LedgerEntry, error) {
		return l.ReserveForPayoutTx(ctx, r, accountID, amount, correlationID)
	})
}

func (l *LedgerService) ReserveForPayoutTx(ctx context.Context, r Repos, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	return l.debit(ctx, r, models.EntryPayout, accountID, amount, correlationID)
}

// Credit appends a positive credit or refund entry to the given bucket.
func (l *LedgerService) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID, kind models.EntryKind, bucket models.Bucket) (*models.LedgerEntry, error) {
	return l.locked(ctx, accountID, func(r Repos) (*models.LedgerEntry, error) {
		return l.CreditTx(ctx, r, accountID, amount, correlationID, kind, bucket)
	})
}

func (l *LedgerService) CreditTx(ctx context.Context, r Repos, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID, kind models.EntryKind, bucket models.Bucket) (*models.LedgerEntry, error) {
	if kind != models.EntryCredit && kind != models.EntryRefund {
		return nil, fmt.Errorf("%w: cannot credit with entry kind %q", ErrInvalidInput, kind)
	}
	if bucket != models.BucketPending && bucket != models.BucketAvailable {
		return nil, fmt.Errorf("%w: unknown bucket %q", ErrInvalidInput, bucket)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrInvalidInput)
	}
	if _, err := r.Users().Get(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	key := models.EntryKey{AccountID: accountID, CorrelationID: correlationID, Kind: kind, Bucket: bucket}
	return l.appendOnce(ctx, r, key, amount)
}

// ReverseCreditTx takes back an earlier pending credit that was never
// released, e.g. a teacher's earnings for a lesson cancelled before it took
// place.
func (l *LedgerService) ReverseCreditTx(ctx context.Context, r Repos, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: reversal amount must be positive", ErrInvalidInput)
	}
	key := models.EntryKey{AccountID: accountID, CorrelationID: correlationID, Kind: models.EntryRefund, Bucket: models.BucketPending}
	return l.appendOnce(ctx, r, key, amount.Neg())
}

// ReleasePendingTx reclassifies pending earnings as withdrawable. It writes
// a balanced pair of release entries so the total balance is unchanged.
func (l *LedgerService) ReleasePendingTx(ctx context.Context, r Repos, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: release amount must be positive", ErrInvalidInput)
	}
	out := models.EntryKey{AccountID: accountID, CorrelationID: correlationID, Kind: models.EntryRelease, Bucket: models.BucketPending}
	in := out
	in.Bucket = models.BucketAvailable
	if _, err := l.appendOnce(ctx, r, out, amount.Neg()); err != nil {
		return err
	}
	_, err := l.appendOnce(ctx, r, in, amount)
	return err
}

func (l *LedgerService) debit(ctx context.Context, r Repos, kind models.EntryKind, accountID uuid.UUID, amount decimal.Decimal, correlationID uuid.UUID) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s amount must be positive", ErrInvalidInput, kind)
	}
	if _, err := r.Users().LockForUpdate(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}

	key := models.EntryKey{AccountID: accountID, CorrelationID: correlationID, Kind: kind, Bucket: models.BucketAvailable}
	existing, err := r.Ledger().Find(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	available, err := r.Ledger().Sum(ctx, accountID, models.BucketAvailable)
	if err != nil {
		return nil, err
	}
	if available.LessThan(amount) {
		return nil, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, available.StringFixed(2), amount.StringFixed(2))
	}
	return l.append(ctx, r, key, amount.Neg())
}

func (l *LedgerService) appendOnce(ctx context.Context, r Repos, key models.EntryKey, amount decimal.Decimal) (*models.LedgerEntry, error) {
	existing, err := r.Ledger().Find(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return l.append(ctx, r, key, amount)
}

func (l *LedgerService) append(ctx context.Context, r Repos, key models.EntryKey, amount decimal.Decimal) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     key.AccountID,
		CorrelationID: key.CorrelationID,
		Kind:          key.Kind,
		Bucket:        key.Bucket,
		Amount:        amount.Round(2),
		CreatedAt:     l.now(),
	}
	if err := r.Ledger().Append(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("ledger entry %s written concurrently: %w", key, err)
		}
		return nil, err
	}
	l.logger.Debug("ledger entry appended",
		zap.String("account_id", key.AccountID.String()),
		zap.String("correlation_id", key.CorrelationID.String()),
		zap.String("kind", string(key.Kind)),
		zap.String("bucket", string(key.Bucket)),
		zap.String("amount", entry.Amount.StringFixed(2)))
	return entry, nil
}

func (l *LedgerService) locked(ctx context.Context, accountID uuid.UUID, fn func(r Repos) (*models.LedgerEntry, error)) (*models.LedgerEntry, error) {
	unlock, err := l.locker.Lock(ctx, AccountLockKey(accountID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var entry *models.LedgerEntry
	err = l.store.Atomic(ctx, func(r Repos) error {
		var err error
		entry, err = fn(r)
		return err
	})
	return entry, err
}
