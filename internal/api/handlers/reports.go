package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/report"
	"github.com/your-org/attendance/pkg/dto"
)

type Reports interface {
	LateAfter() string
	LateComers(ctx context.Context, f ledger.Filter) ([]report.Late, error)
	LowAttendance(ctx context.Context, f ledger.Filter) (report.LowAttendance, error)
	Absentees(ctx context.Context, date string) ([]string, error)
	NotifyAbsentees(ctx context.Context, date string) ([]string, bool, error)
}

type ReportHandler struct {
	reports Reports
	now     func() time.Time
}

func NewReportHandler(r Reports) *ReportHandler {
	return &ReportHandler{reports: r, now: time.Now}
}

func (h *ReportHandler) LateComers(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	late, err := h.reports.LateComers(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.LateComersResponse{After: h.reports.LateAfter(), LateComers: make([]dto.LateComer, 0, len(late))}
	for _, l := range late {
		resp.LateComers = append(resp.LateComers, dto.LateComer{Identity: l.Identity, Date: l.Date, Time: l.Time})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) LowAttendance(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	res, err := h.reports.LowAttendance(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.LowAttendanceResponse{
		TotalDays: res.TotalDays,
		Threshold: res.Threshold,
		Persons:   make([]dto.AttendanceRate, 0, len(res.Persons)),
	}
	for _, p := range res.Persons {
		resp.Persons = append(resp.Persons, dto.AttendanceRate{Identity: p.Identity, Days: p.Days, Rate: p.Rate})
	}
	c.JSON(http.StatusOK, resp)
}

// Absentees lists registered identities absent on ?date= (default today).
func (h *ReportHandler) Absentees(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	absent, err := h.reports.Absentees(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AbsenteesResponse{Date: date, Absentees: nonNil(absent)})
}

// NotifyAbsentees is Absentees plus the "absenties" email.
func (h *ReportHandler) NotifyAbsentees(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	absent, sent, err := h.reports.NotifyAbsentees(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AbsenteesResponse{Date: date, Absentees: nonNil(absent), Notified: sent})
}

func (h *ReportHandler) date(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		return h.now().Format(models.DateLayout), true
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
