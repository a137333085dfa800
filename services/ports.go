package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/tutor_marketplace/models"
)

// Clock returns the current time in UTC.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Locker serializes work per key. Lock acquires every key or none of them;
// the returned func releases whatever was acquired and is safe to call more
// than once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

func AccountLockKey(accountID uuid.UUID) string {
	return "ledger:account:" + accountID.String()
}

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

type ChargeRequest struct {
	CorrelationID uuid.UUID
	AccountID     uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Method        models.PaymentMethod
}

type ChargeResult struct {
	ProviderRef string
	Status      ChargeStatus
	// ApprovalURL is set by providers that need the payer to confirm the
	// charge on their side.
	ApprovalURL string
}

type ChargeRef struct {
	CorrelationID uuid.UUID
	ProviderRef   string
	Method        models.PaymentMethod
}

// PaymentGateway is an external card/PayPal processor. Implementations
// return ErrPaymentFailed for definitive declines and ErrGatewayTimeout when
// the outcome is unknown. InitiateCharge must be idempotent on
// CorrelationID. Cancel returns nil once the charge can no longer capture
// money and ErrAlreadyCaptured if it already did.
type PaymentGateway interface {
	InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Status(ctx context.Context, ref ChargeRef) (ChargeStatus, error)
	Cancel(ctx context.Context, ref ChargeRef) error
}

func enqueue(ctx context.Context, r Repos, topic string, key uuid.UUID, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Outbox().Create(ctx, &models.OutboxMessage{
		ID:         uuid.New(),
		Topic:      topic,
		MessageKey: key.String(),
		Payload:    string(body),
		Status:     models.OutboxPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
