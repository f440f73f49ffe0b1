package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

type EventLister interface {
	Attendance(ctx context.Context, f ledger.Filter) ([]models.AttendanceEvent, error)
	Leaves(ctx context.Context, f ledger.Filter) ([]models.LeaveEvent, error)
}

type EventHandler struct {
	ledger EventLister
}

func NewEventHandler(l EventLister) *EventHandler {
	return &EventHandler{ledger: l}
}

func (h *EventHandler) Attendance(c *gin.Context) {
	h.list(c, h.ledger.Attendance)
}

func (h *EventHandler) Leaves(c *gin.Context) {
	h.list(c, h.ledger.Leaves)
}

func (h *EventHandler) list(c *gin.Context, fn func(context.Context, ledger.Filter) ([]models.AttendanceEvent, error)) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	evs, err := fn(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.EventListResponse{Events: make([]dto.EventResponse, 0, len(evs)), Total: len(evs)}
	for _, ev := range evs {
		resp.Events = append(resp.Events, dto.NewEventResponse(ev))
	}
	c.JSON(http.StatusOK, resp)
}

// bindFilter parses ?identity=&from=&to= and writes a 400 on bad dates.
func bindFilter(c *gin.Context) (ledger.Filter, bool) {
	var q dto.EventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ledger.Filter{}, false
	}
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
			return ledger.Filter{}, false
		}
	}
	return ledger.Filter{Identity: q.Identity, From: q.From, To: q.To}, true
}
