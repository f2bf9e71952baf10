package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/services"
)

type Analytics interface {
	Stats(ctx context.Context, userID uint) (*services.Stats, error)
	ExportCSV(ctx context.Context, userID uint, w io.Writer) error
}

type AnalyticsHandler struct {
	Analytics Analytics
}

func NewAnalyticsHandler(a Analytics) *AnalyticsHandler {
	return &AnalyticsHandler{Analytics: a}
}

// Stats is the GET /analytics/stats endpoint
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	stats, err := h.Analytics.Stats(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export is the GET /analytics/export endpoint
func (h *AnalyticsHandler) Export(c *gin.Context) {
	// Buffered so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := h.Analytics.ExportCSV(c.Request.Context(), currentUser(c).ID, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=job_applications.csv")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
