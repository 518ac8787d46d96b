package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartpresent/internal/attendance"
	"smartpresent/internal/csvio"
)

func (h *Handler) Sessions(c *gin.Context) {
	history, err := h.att.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": history})
}

// rangeCutoff maps range=all|week|month to the earliest session date kept.
func rangeCutoff(r string, now time.Time) (time.Time, bool) {
	switch r {
	case "", "all":
		return time.Time{}, true
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

// Export downloads the class history as CSV or XLSX.
func (h *Handler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}
	cutoff, ok := rangeCutoff(c.Query("range"), time.Now())
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range must be all, week or month"})
		return
	}

	ctx := c.Request.Context()
	cls := currentClass(c)
	details, err := h.att.Sessions(ctx, cls.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	details = attendance.Since(details, cutoff)

	var summary *csvio.Summary
	if c.Query("stats") == "1" || c.Query("stats") == "true" {
		roster, err := h.att.Roster(ctx, cls.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		s := attendance.Summarize(details, len(roster))
		summary = &s
	}
	rows := attendance.ExportRows(details)

	c.Header("Content-Disposition", `attachment; filename="`+csvio.ExportFilename(cls.Name, format)+`"`)
	if format == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		if err := csvio.WriteXLSX(c.Writer, rows, summary); err != nil {
			c.Error(err)
		}
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if err := csvio.WriteExport(c.Writer, rows, summary); err != nil {
		c.Error(err)
	}
}
