package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
)

type EventResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Identity    string    `json:"identity"`
	Timestamp   string    `json:"timestamp"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
}

func NewEventResponse(ev models.AttendanceEvent) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		Kind:        string(ev.Kind),
		Identity:    ev.Identity,
		Timestamp:   ev.Timestamp.Format(time.RFC3339),
		Date:        ev.Date,
		Time:        ev.Clock(),
		EvidenceRef: ev.EvidenceRef,
	}
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

type EventQuery struct {
	Identity string `form:"identity"`
	From     string `form:"from"`
	To       string `form:"to"`
}

// AttendanceMessage is the JetStream payload for a committed event. Contact
// is resolved at publish time so consumers do not need gallery access.
type AttendanceMessage struct {
	EventResponse
	Contact string `json:"contact,omitempty"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type string        `json:"type"` // attendance_recorded, leave_recorded
	Data EventResponse `json:"data"`
}
