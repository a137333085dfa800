package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryCharge  EntryKind = "charge"
	EntryCredit  EntryKind = "credit"
	EntryRefund  EntryKind = "refund"
	EntryPayout  EntryKind = "payout"
	EntryRelease EntryKind = "release"
)

// Bucket splits a balance into funds that may be withdrawn and funds still
// held until the lesson that earned them is completed.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketAvailable Bucket = "available"
)

// LedgerEntry is immutable once written. Balances are always derived by
// summing entries, never stored.
type LedgerEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_idempotency,priority:1;index:idx_ledger_account_created,priority:1" json:"account_id"`
	CorrelationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_idempotency,priority:2" json:"correlation_id"`
	Kind          EntryKind       `gorm:"size:20;not null;uniqueIndex:idx_ledger_idempotency,priority:3" json:"kind"`
	Bucket        Bucket          `gorm:"size:20;not null;uniqueIndex:idx_ledger_idempotency,priority:4" json:"bucket"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_ledger_account_created,priority:2" json:"created_at"`
}

// EntryKey is the idempotency key of a ledger entry.
type EntryKey struct {
	AccountID     uuid.UUID
	CorrelationID uuid.UUID
	Kind          EntryKind
	Bucket        Bucket
}

func (e LedgerEntry) Key() EntryKey {
	return EntryKey{AccountID: e.AccountID, CorrelationID: e.CorrelationID, Kind: e.Kind, Bucket: e.Bucket}
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.AccountID, k.CorrelationID, k.Kind, k.Bucket)
}
