package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartpresent/internal/insight"
)

// Analytics returns the dashboard data. A missing insight is queued for
// generation and reported as pending.
func (h *Handler) Analytics(c *gin.Context) {
	ctx := c.Request.Context()
	a, err := h.insight.Analytics(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if a.Pending {
		h.enqueueRefresh(ctx, c.Param("id"))
	}
	c.JSON(http.StatusOK, a)
}

// RefreshInsight queues a regeneration of the class insight.
func (h *Handler) RefreshInsight(c *gin.Context) {
	h.enqueueRefresh(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) Ask(c *gin.Context) {
	var req struct {
		Question string `json:"question" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 90*time.Second)
	defer cancel()

	answer, err := h.insight.Ask(ctx, c.Param("id"), req.Question)
	if err != nil && answer == insight.AskError {
		// The placeholder is the answer the teacher sees.
		c.JSON(http.StatusOK, gin.H{"answer": answer, "failed": true})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}
