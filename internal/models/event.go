package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DateLayout is the calendar-day key used for deduplication.
	DateLayout = "2006-01-02"
	// ClockLayout is the time-of-day column in the ledgers.
	ClockLayout = "15:04:05"
)

type EventKind string

const (
	KindAttendance EventKind = "attendance"
	KindLeave      EventKind = "leave"
)

// AttendanceEvent is one committed ledger row. Rows are never mutated after
// commit; Identity keeps the name as it was at event time.
type AttendanceEvent struct {
	ID          uuid.UUID `json:"id"`
	Kind        EventKind `json:"kind"`
	Identity    string    `json:"identity"`
	Timestamp   time.Time `json:"timestamp"`
	Date        string    `json:"date"`
	EvidenceRef string    `json:"evidence_ref"`
}

// LeaveEvent is an explicit sign-out. Several may exist per identity and day.
type LeaveEvent = AttendanceEvent

// NewEvent stamps a fresh event for identity at now.
func NewEvent(kind EventKind, identity, evidenceRef string, now time.Time) AttendanceEvent {
	return AttendanceEvent{
		ID:          uuid.New(),
		Kind:        kind,
		Identity:    identity,
		Timestamp:   now,
		Date:        now.Format(DateLayout),
		EvidenceRef: evidenceRef,
	}
}

// Clock returns the time-of-day column value.
func (e AttendanceEvent) Clock() string {
	return e.Timestamp.Format(ClockLayout)
}

// EvidenceKey builds the object key for the frame saved alongside a commit.
func EvidenceKey(identity string, now time.Time) string {
	return identity + "_" + now.Format("20060102_150405") + ".jpg"
}
