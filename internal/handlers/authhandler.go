package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/justsurfingit/nextsteps/internal/auth"
	"github.com/justsurfingit/nextsteps/internal/dtos"
	"golang.org/x/oauth2"
)

const oauthStateCookie = "oauth_state"

type OAuthProvider interface {
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, *auth.Profile, error)
}

type AuthHandler struct {
	Provider    OAuthProvider
	Users       UserStore
	Identity    IdentityChecker
	FrontendURL string
	// Marks the state cookie Secure when served over https.
	SecureCookie bool
}

// Login is the GET /auth/login endpoint
func (h *AuthHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", h.SecureCookie, true)
	c.Redirect(http.StatusTemporaryRedirect, h.Provider.LoginURL(state))
}

// Callback is the GET /auth/callback endpoint. The access token is handed
// to the frontend in the redirect URL.
func (h *AuthHandler) Callback(c *gin.Context) {
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		slog.WarnContext(c.Request.Context(), "oauth state mismatch")
		abortWithDetail(c, http.StatusBadRequest, "invalid state parameter")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.SecureCookie, true)

	code := c.Query("code")
	if code == "" {
		abortWithDetail(c, http.StatusBadRequest, "missing authorization code")
		return
	}

	tok, profile, err := h.Provider.Exchange(c.Request.Context(), code)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "oauth callback failed", slog.Any("error", err))
		abortWithDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Users.UpsertFromGoogle(c.Request.Context(), profile.Email, profile.Name, profile.Picture); err != nil {
		respondError(c, err)
		return
	}

	q := url.Values{"token": {tok.AccessToken}, "email": {profile.Email}}
	c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"?"+q.Encode())
}

// Verify is the GET /auth/verify endpoint
func (h *AuthHandler) Verify(c *gin.Context) {
	credential := credentialFrom(c)
	if credential == "" {
		abortWithDetail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	email, err := h.Identity.Profile(c.Request.Context(), credential)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "token verification failed", slog.Any("error", err))
		abortWithDetail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.JSON(http.StatusOK, dtos.VerifyResponse{Status: "valid", Email: email})
}
