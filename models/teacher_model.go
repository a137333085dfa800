package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ApprovalStatus string

const (
	ApprovalIncomplete ApprovalStatus = "incomplete"
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalRejected   ApprovalStatus = "rejected"
)

type Teacher struct {
	UserID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	Status         ApprovalStatus  `gorm:"size:20;not null;index" json:"status"`
	Headline       *string         `gorm:"size:255" json:"headline"`
	Bio            *string         `gorm:"type:text" json:"bio"`
	PricePerLesson decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price_per_lesson"`
	ReviewerID     *uuid.UUID      `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	ReviewNote     *string         `gorm:"type:text" json:"review_note,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
	Version        int             `gorm:"not null" json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (t Teacher) Bookable() bool {
	return t.Status == ApprovalApproved
}
