package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LessonRecord is written exactly once, when its booking is confirmed.
type LessonRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	TeacherID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"teacher_id"`
	StudentID       uuid.UUID       `gorm:"type:uuid;not null" json:"student_id"`
	ScheduledAt     time.Time       `gorm:"not null" json:"scheduled_at"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`
	Price           decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	PlatformFee     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"platform_fee"`
	TeacherEarnings decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"teacher_earnings"`
	CreatedAt       time.Time       `json:"created_at"`
}
