package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/services"
)

// abortWithDetail writes the JSON error body every endpoint uses.
func abortWithDetail(c *gin.Context, status int, detail any) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAuthentication):
		abortWithDetail(c, http.StatusUnauthorized, services.Detail(err))
	case errors.Is(err, services.ErrValidation):
		abortWithDetail(c, http.StatusBadRequest, services.Detail(err))
	case errors.Is(err, services.ErrNotFound):
		abortWithDetail(c, http.StatusNotFound, services.Detail(err))
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()), slog.Any("error", err))
		_ = c.Error(err)
		abortWithDetail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func bindError(c *gin.Context, err error) {
	abortWithDetail(c, http.StatusBadRequest, "Invalid JSON format: "+err.Error())
}
