package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutCompleted PayoutStatus = "completed"
)

type PayoutMethod string

const (
	PayoutBankTransfer PayoutMethod = "bank_transfer"
	PayoutPayPal       PayoutMethod = "paypal"
	PayoutMpesa        PayoutMethod = "mpesa"
)

func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutBankTransfer, PayoutPayPal, PayoutMpesa:
		return true
	}
	return false
}

type PayoutRequest struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"teacher_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	Method      PayoutMethod    `gorm:"size:20;not null" json:"method"`
	Destination string          `gorm:"size:255;not null" json:"destination"`
	Status      PayoutStatus    `gorm:"size:20;not null;index" json:"status"`
	ReviewerID  *uuid.UUID      `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	AdminNotes  *string         `gorm:"type:text" json:"admin_notes,omitempty"`
	ExternalRef *string         `gorm:"size:255" json:"external_ref,omitempty"`
	RequestedAt time.Time       `gorm:"not null" json:"requested_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Version     int             `gorm:"not null" json:"version"`
}
