package models

import (
	"time"
)

// MeetingRecord is the history row for one lifetime of a room: from the
// first member joining until the last one leaving. It holds no content.
type MeetingRecord struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	RoomKey     string     `json:"roomKey" gorm:"size:128;index"`
	OpenedAt    time.Time  `json:"openedAt" gorm:"index"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	PeakMembers int        `json:"peakMembers"`
}

func (MeetingRecord) TableName() string {
	return "meetings"
}

// Open reports whether the room is still live.
func (m *MeetingRecord) Open() bool {
	return m.ClosedAt == nil
}

// Duration returns how long the room lived, measured up to now while open.
func (m *MeetingRecord) Duration(now time.Time) time.Duration {
	if m.ClosedAt != nil {
		return m.ClosedAt.Sub(m.OpenedAt)
	}
	return now.Sub(m.OpenedAt)
}
