package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/models"
	"github.com/justsurfingit/nextsteps/internal/services"
)

type Scanner interface {
	Scan(ctx context.Context, user *models.User, credential string) (*services.ScanReport, error)
}

type ScanHandler struct {
	Scanner Scanner
}

func NewScanHandler(s Scanner) *ScanHandler {
	return &ScanHandler{Scanner: s}
}

// Scan is the POST /scan endpoint. Every outcome except a rejected
// credential is a 200 with the report.
func (h *ScanHandler) Scan(c *gin.Context) {
	report, err := h.Scanner.Scan(c.Request.Context(), currentUser(c), c.GetString(ctxCredential))
	if errors.Is(err, services.ErrAuthentication) {
		abortWithDetail(c, http.StatusUnauthorized, "Failed to fetch emails: "+err.Error())
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
