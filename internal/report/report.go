package report

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/notify"
)

const (
	DefaultLateAfter          = "09:00:00"
	DefaultLowAttendanceRatio = 0.75
)

type EventSource interface {
	Attendance(ctx context.Context, f ledger.Filter) ([]models.AttendanceEvent, error)
}

// Roster enumerates registered identities.
type Roster interface {
	List(ctx context.Context) iter.Seq2[string, error]
}

type Late struct {
	Identity string
	Date     string
	Time     string
}

type Rate struct {
	Identity string
	Days     int
	Rate     float64
}

type LowAttendance struct {
	TotalDays int
	Threshold float64
	Persons   []Rate
}

type Service struct {
	events    EventSource
	roster    Roster
	sender    notify.Sender
	to        string
	lateAfter string
	ratio     float64
}

// New builds a report service. sender and to may be empty, in which case
// absentee notices are not sent.
func New(events EventSource, roster Roster, sender notify.Sender, to, lateAfter string, ratio float64) (*Service, error) {
	if lateAfter == "" {
		lateAfter = DefaultLateAfter
	}
	if _, err := time.Parse(models.ClockLayout, lateAfter); err != nil {
		return nil, fmt.Errorf("late_after %q: %w", lateAfter, err)
	}
	if ratio <= 0 {
		ratio = DefaultLowAttendanceRatio
	}
	return &Service{
		events:    events,
		roster:    roster,
		sender:    sender,
		to:        to,
		lateAfter: lateAfter,
		ratio:     ratio,
	}, nil
}

func (s *Service) LateAfter() string { return s.lateAfter }

// LateComers lists attendance rows recorded strictly after the cut-off
// time of day.
func (s *Service) LateComers(ctx context.Context, f ledger.Filter) ([]Late, error) {
	evs, err := s.events.Attendance(ctx, f)
	if err != nil {
		return nil, err
	}
	var out []Late
	for _, ev := range evs {
		if clock := ev.Clock(); clock > s.lateAfter {
			out = append(out, Late{Identity: ev.Identity, Date: ev.Date, Time: clock})
		}
	}
	return out, nil
}

// LowAttendance lists identities present on fewer than ratio of the
// distinct days that appear in the ledger.
func (s *Service) LowAttendance(ctx context.Context, f ledger.Filter) (LowAttendance, error) {
	evs, err := s.events.Attendance(ctx, f)
	if err != nil {
		return LowAttendance{}, err
	}

	dates := make(map[string]struct{})
	days := make(map[string]map[string]struct{})
	for _, ev := range evs {
		dates[ev.Date] = struct{}{}
		if days[ev.Identity] == nil {
			days[ev.Identity] = make(map[string]struct{})
		}
		days[ev.Identity][ev.Date] = struct{}{}
	}

	res := LowAttendance{TotalDays: len(dates), Threshold: s.ratio * float64(len(dates))}
	for identity, d := range days {
		if float64(len(d)) < res.Threshold {
			res.Persons = append(res.Persons, Rate{
				Identity: identity,
				Days:     len(d),
				Rate:     float64(len(d)) / float64(res.TotalDays),
			})
		}
	}
	slices.SortFunc(res.Persons, func(a, b Rate) int {
		if c := cmp.Compare(a.Days, b.Days); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	return res, nil
}

// Absentees lists registered identities with no attendance on date.
func (s *Service) Absentees(ctx context.Context, date string) ([]string, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("date %q: %w", date, err)
	}
	evs, err := s.events.Attendance(ctx, ledger.Filter{From: date, To: date})
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(evs))
	for _, ev := range evs {
		present[ev.Identity] = true
	}

	var absent []string
	for name, err := range s.roster.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list identities: %w", err)
		}
		if !present[name] {
			absent = append(absent, name)
		}
	}
	return absent, nil
}

// NotifyAbsentees computes the absentees for date and emails the list to
// the configured recipient. It reports whether a message was sent.
func (s *Service) NotifyAbsentees(ctx context.Context, date string) ([]string, bool, error) {
	absent, err := s.Absentees(ctx, date)
	if err != nil {
		return nil, false, err
	}
	if len(absent) == 0 || s.sender == nil || s.to == "" {
		return absent, false, nil
	}

	err = s.sender.Send(ctx, notify.Message{
		To:      []string{s.to},
		Subject: notify.AbsentSubject,
		Body:    notify.AbsentBody(absent),
	})
	if err != nil {
		slog.Error("send absentee notice", "date", date, "error", err)
		return absent, false, fmt.Errorf("send absentee notice: %w", err)
	}
	slog.Info("absentee notice sent", "date", date, "count", len(absent))
	return absent, true, nil
}
