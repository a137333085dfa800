package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
	PaymentPayPal PaymentMethod = "paypal"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentWallet, PaymentCard, PaymentPayPal:
		return true
	}
	return false
}

// Booking rows are unique on (teacher_id, slot_start) among non-cancelled
// rows. The partial index is created by database.Migrate.
type Booking struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	TeacherID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"teacher_id"`
	SlotStart       time.Time       `gorm:"not null;index" json:"slot_start"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`
	Price           decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	PlatformFee     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"platform_fee"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	PaymentMethod   PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Status          BookingStatus   `gorm:"size:20;not null;index" json:"status"`
	Paid            bool            `gorm:"not null" json:"paid"`
	PaymentRef      *string         `gorm:"size:255" json:"payment_ref,omitempty"`
	PaymentURL      *string         `gorm:"size:512" json:"payment_url,omitempty"`
	PaymentDeadline *time.Time      `gorm:"index" json:"payment_deadline,omitempty"`
	CancelledBy     *uuid.UUID      `gorm:"type:uuid" json:"cancelled_by,omitempty"`
	Version         int             `gorm:"not null" json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (b Booking) SlotEnd() time.Time {
	return b.SlotStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

func (b Booking) TeacherEarnings() decimal.Decimal {
	return b.Price.Sub(b.PlatformFee)
}

func (b Booking) ExternallyPaid() bool {
	return b.PaymentMethod != PaymentWallet
}
