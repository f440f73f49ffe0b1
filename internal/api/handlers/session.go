package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/pkg/dto"
)

type Sessions interface {
	Login(ctx context.Context) (recognition.SessionResult, error)
	Logout(ctx context.Context) (recognition.SessionResult, error)
}

// SessionHandler exposes interactive login/logout on the latest camera
// frame. Every recognised outcome, including spoof and unknown, is a 200.
type SessionHandler struct {
	sessions Sessions
}

func NewSessionHandler(s Sessions) *SessionHandler {
	return &SessionHandler{sessions: s}
}

func (h *SessionHandler) Login(c *gin.Context) {
	h.respond(c, h.sessions.Login)
}

func (h *SessionHandler) Logout(c *gin.Context) {
	h.respond(c, h.sessions.Logout)
}

func (h *SessionHandler) respond(c *gin.Context, fn func(context.Context) (recognition.SessionResult, error)) {
	res, err := fn(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.SessionResponse{
		Outcome:  string(res.Outcome),
		Identity: res.Identity,
		Message:  res.Message(),
	}
	if res.Event != nil {
		ev := dto.NewEventResponse(*res.Event)
		resp.Event = &ev
	}
	c.JSON(http.StatusOK, resp)
}
