package models

import (
	"time"

	"github.com/google/uuid"
)

type AvailabilitySlot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index" json:"teacher_id"`
	StartTime time.Time `gorm:"not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether [start, end) lies entirely inside the slot.
func (a AvailabilitySlot) Covers(start, end time.Time) bool {
	return !a.StartTime.After(start) && !a.EndTime.Before(end)
}

func (a AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}
