package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingCompleted = "booking.completed"
	TopicPayoutApproved   = "payout.approved"
	TopicPayoutCompleted  = "payout.completed"
	TopicTeacherDecided   = "teacher.decided"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage is written in the same transaction as the state change it
// announces and relayed to the broker afterwards.
type OutboxMessage struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Topic      string       `gorm:"size:100;not null" json:"topic"`
	MessageKey string       `gorm:"size:100;not null" json:"message_key"`
	Payload    string       `gorm:"type:text;not null" json:"payload"`
	Status     OutboxStatus `gorm:"size:20;not null;index" json:"status"`
	RetryCount int          `gorm:"not null" json:"retry_count"`
	CreatedAt  time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
