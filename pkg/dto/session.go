package dto

type SessionResponse struct {
	Outcome  string         `json:"outcome"` // welcome, goodbye, already_recorded, unknown, no_face, spoof
	Identity string         `json:"identity,omitempty"`
	Message  string         `json:"message"`
	Event    *EventResponse `json:"event,omitempty"`
}

type LateComer struct {
	Identity string `json:"identity"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type LateComersResponse struct {
	After      string      `json:"after"`
	LateComers []LateComer `json:"late_comers"`
}

type AttendanceRate struct {
	Identity string  `json:"identity"`
	Days     int     `json:"days"`
	Rate     float64 `json:"rate"`
}

type LowAttendanceResponse struct {
	TotalDays int              `json:"total_days"`
	Threshold float64          `json:"threshold"`
	Persons   []AttendanceRate `json:"persons"`
}

type AbsenteesResponse struct {
	Date      string   `json:"date"`
	Absentees []string `json:"absentees"`
	Notified  bool     `json:"notified"`
}
