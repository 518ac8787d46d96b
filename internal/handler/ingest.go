package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartpresent/internal/auth"
	"smartpresent/internal/csvio"
)

const maxUpload = 5 << 20

func (h *Handler) ScanUID(c *gin.Context) {
	var req struct {
		UID string `json:"uid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.att.ScanUID(c.Request.Context(), c.Param("id"), req.UID, auth.TeacherID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SyncFeed(c *gin.Context) {
	report, err := h.att.SyncFeed(c.Request.Context(), c.Param("id"), auth.TeacherID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ImportCSV accepts a multipart "file" field or a raw text/csv body.
func (h *Handler) ImportCSV(c *gin.Context) {
	var body io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		body = file
	} else {
		body = c.Request.Body
	}

	rows, err := csvio.ParseRoster(io.LimitReader(body, maxUpload))
	if errors.Is(err, csvio.ErrEmpty) {
		writeError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.att.ImportCSV(c.Request.Context(), c.Param("id"), auth.TeacherID(c), rows)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) LoadSample(c *gin.Context) {
	report, err := h.att.LoadSample(c.Request.Context(), c.Param("id"), auth.TeacherID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ImportTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="attendance_template.csv"`)
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if err := csvio.WriteTemplate(c.Writer); err != nil {
		c.Error(err)
	}
}
