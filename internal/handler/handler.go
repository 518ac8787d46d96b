package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartpresent/internal/attendance"
	"smartpresent/internal/auth"
	"smartpresent/internal/insight"
	"smartpresent/internal/queue"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the HTTP API.
type Handler struct {
	att     *attendance.Service
	auth    *auth.Service
	insight *insight.Service
	jobs    queue.Queue
	checks  map[string]HealthCheck
}

func New(att *attendance.Service, authSvc *auth.Service, ins *insight.Service, jobs queue.Queue, checks map[string]HealthCheck) *Handler {
	return &Handler{att: att, auth: authSvc, insight: ins, jobs: jobs, checks: checks}
}

// Register mounts all routes. protect guards everything below /v1 except the
// auth endpoints and the import template.
func (h *Handler) Register(r gin.IRouter, protect gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/signup", h.Signup)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)
	v1.GET("/import/template", h.ImportTemplate)

	api := v1.Group("", protect)
	api.GET("/classes", h.ListClasses)
	api.POST("/classes", h.CreateClass)

	cls := api.Group("/classes/:id", h.ownClass)
	cls.GET("", h.GetClass)
	cls.DELETE("", h.DeleteClass)
	cls.GET("/board", h.Board)
	cls.POST("/board/reload", h.ReloadBoard)
	cls.POST("/students", h.AddStudent)
	cls.DELETE("/students/:sid", h.RemoveStudent)
	cls.POST("/session", h.CreateSession)
	cls.DELETE("/session", h.CancelSession)
	cls.POST("/session/finalize", h.Finalize)
	cls.PUT("/marks/:sid", h.Mark)
	cls.POST("/rfid/scan", h.ScanUID)
	cls.POST("/rfid/sync", h.SyncFeed)
	cls.POST("/import/csv", h.ImportCSV)
	cls.POST("/import/sample", h.LoadSample)
	cls.GET("/sessions", h.Sessions)
	cls.GET("/export", h.Export)
	cls.GET("/analytics", h.Analytics)
	cls.POST("/analytics/refresh", h.RefreshInsight)
	cls.POST("/ask", h.Ask)
}

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

const classKey = "class"

// ownClass loads the class named in the path and hides classes owned by
// another teacher.
func (h *Handler) ownClass(c *gin.Context) {
	cls, err := h.att.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	if cls.TeacherID != "" && cls.TeacherID != auth.TeacherID(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	c.Set(classKey, cls)
	c.Next()
}

func currentClass(c *gin.Context) attendance.Class {
	v, _ := c.Get(classKey)
	cls, _ := v.(attendance.Class)
	return cls
}

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	if attendance.IsInformational(err) {
		var nf *attendance.UIDNotFoundError
		if errors.As(err, &nf) {
			c.JSON(http.StatusNotFound, gin.H{"error": nf.Error(), "known": nf.Known})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	switch {
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, insight.ErrNoQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrConflict),
		errors.Is(err, attendance.ErrSessionActive),
		errors.Is(err, attendance.ErrNoActiveSession),
		errors.Is(err, auth.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrFeedUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// enqueueRefresh asks the worker to regenerate a class's insight.
func (h *Handler) enqueueRefresh(ctx context.Context, classID string) {
	if h.jobs == nil {
		return
	}
	if err := queue.Offer(ctx, h.jobs, queue.Job{Kind: queue.JobRefreshInsight, ClassID: classID}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
