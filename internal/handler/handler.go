package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/events"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	gate      *auth.Gate
	svc       *attendance.Service
	bus       events.Bus // nil disables the live feed
	checks    map[string]HealthCheck
	publicDir string
	signIn    SignInConfig
	log       *zap.Logger
}

func New(gate *auth.Gate, svc *attendance.Service, bus events.Bus, checks map[string]HealthCheck, publicDir string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{gate: gate, svc: svc, bus: bus, checks: checks, publicDir: publicDir, log: log}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/auth/config", h.AuthConfig)
	v1.POST("/auth/login", h.Login)
	v1.GET("/qr", h.QR)

	student := v1.Group("", auth.StudentAuth(h.gate))
	student.POST("/auth/logout", h.Logout)
	student.GET("/me", h.Me)
	student.POST("/scans", h.Scan)
	student.GET("/attendance/today", h.Today)
	student.GET("/attendance/today/me", h.Mine)
	student.GET("/events", h.Events)

	// views
	r.StaticFile("/login", filepath.Join(h.publicDir, "login.html"))
	r.StaticFile("/scanner", filepath.Join(h.publicDir, "scanner.html"))
	r.NoRoute(h.fallback)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// fallback sends unknown page requests to the login view.
func (h *Handler) fallback(c *gin.Context) {
	p := c.Request.URL.Path
	if c.Request.Method == http.MethodGet && !strings.HasPrefix(p, "/v1/") {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
