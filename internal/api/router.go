package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/auth"
)

type RouterConfig struct {
	APIKey     string
	Identities handlers.IdentityStore
	Sessions   handlers.Sessions
	Ledger     handlers.EventLister
	Reports    handlers.Reports
	Hub        *ws.Hub
	// Checks are probed by /readyz, keyed by dependency name.
	Checks map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	if cfg.Identities != nil {
		idH := handlers.NewIdentityHandler(cfg.Identities)
		v1.POST("/identities", idH.Register)
		v1.GET("/identities", idH.List)
		v1.GET("/identities/:name", idH.Get)
		v1.POST("/identities/:name/rename", idH.Rename)
		v1.PUT("/identities/:name/contact", idH.UpdateContact)
		v1.DELETE("/identities/:name", idH.Delete)
	}

	if cfg.Sessions != nil {
		sessH := handlers.NewSessionHandler(cfg.Sessions)
		v1.POST("/session/login", sessH.Login)
		v1.POST("/session/logout", sessH.Logout)
	}

	if cfg.Ledger != nil {
		evH := handlers.NewEventHandler(cfg.Ledger)
		v1.GET("/attendance", evH.Attendance)
		v1.GET("/leaves", evH.Leaves)
	}

	if cfg.Reports != nil {
		repH := handlers.NewReportHandler(cfg.Reports)
		v1.GET("/reports/late", repH.LateComers)
		v1.GET("/reports/low-attendance", repH.LowAttendance)
		v1.GET("/reports/absentees", repH.Absentees)
		v1.POST("/reports/absentees/notify", repH.NotifyAbsentees)
	}

	return r
}
