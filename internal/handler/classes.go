package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartpresent/internal/attendance"
	"smartpresent/internal/auth"
)

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.att.ListClasses(c.Request.Context(), auth.TeacherID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Subject string `json:"subject"`
		Code    string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls, err := h.att.CreateClass(c.Request.Context(), attendance.Class{
		Name:      req.Name,
		Subject:   req.Subject,
		Code:      req.Code,
		TeacherID: auth.TeacherID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cls)
}

func (h *Handler) GetClass(c *gin.Context) {
	c.JSON(http.StatusOK, currentClass(c))
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.att.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Board(c *gin.Context) {
	board, err := h.att.Board(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) ReloadBoard(c *gin.Context) {
	board, err := h.att.Reload(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) AddStudent(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.att.AddStudent(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) RemoveStudent(c *gin.Context) {
	if err := h.att.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		Topic       string    `json:"topic" binding:"required"`
		SessionDate time.Time `json:"session_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	board, err := h.att.CreateSession(c.Request.Context(), c.Param("id"), req.SessionDate, req.Topic)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

func (h *Handler) CancelSession(c *gin.Context) {
	if err := h.att.CancelSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Mark(c *gin.Context) {
	var req struct {
		Present *bool `json:"present" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.att.Mark(c.Request.Context(), c.Param("id"), c.Param("sid"), *req.Present)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Finalize(c *gin.Context) {
	res, err := h.att.Finalize(c.Request.Context(), c.Param("id"), auth.TeacherID(c))
	if err != nil {
		if res.Session.ID != "" {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "session saved but some records failed; retry to complete",
				"session_id": res.Session.ID,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
