package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/models"
	"github.com/justsurfingit/nextsteps/internal/services"
)

const (
	ctxUser       = "user"
	ctxCredential = "credential"
)

// IdentityChecker resolves a Gmail access token to its mailbox address.
type IdentityChecker interface {
	Profile(ctx context.Context, credential string) (string, error)
}

// UserFinder loads the user behind an authenticated address.
type UserFinder interface {
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// credentialFrom reads the Gmail access token from the Authorization
// bearer header, or the bare token header older clients send.
func credentialFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(c.GetHeader("token"))
}

// RequireUser authenticates the request against Gmail and loads the user.
func RequireUser(identity IdentityChecker, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := credentialFrom(c)
		if credential == "" {
			abortWithDetail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		email, err := identity.Profile(c.Request.Context(), credential)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "auth failed", slog.Any("error", err))
			abortWithDetail(c, http.StatusUnauthorized, "Invalid authentication credentials")
			return
		}

		user, err := users.ByEmail(c.Request.Context(), email)
		if errors.Is(err, services.ErrNotFound) {
			abortWithDetail(c, http.StatusUnauthorized, "User not found")
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(ctxUser, user)
		c.Set(ctxCredential, credential)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUser).(*models.User)
}

// RequestLogger writes one structured record per request.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if v, ok := c.Get(ctxUser); ok {
			attrs = append(attrs, slog.Uint64("user_id", uint64(v.(*models.User).ID)))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "http_request", attrs...)
	}
}
