package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// fakeGoogle serves the token and userinfo endpoints.
func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.ParseForm() != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"me@example.com","name":"Me","picture":"https://pic/me"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) *oauth2.Config {
	cfg := NewConfig("client-id", "client-secret", "http://localhost:8000/auth/callback")
	cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	return cfg
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("id", "secret", "http://x/auth/callback")
	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/gmail.readonly")
	assert.Contains(t, cfg.Scopes, "email")
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
}

func TestGoogleProvider_LoginURL(t *testing.T) {
	p := NewGoogleProvider(NewConfig("id", "secret", "http://x/auth/callback"))
	u, err := url.Parse(p.LoginURL("st4te"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "http://x/auth/callback", q.Get("redirect_uri"))
	assert.True(t, strings.Contains(q.Get("scope"), "gmail.readonly"))
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := fakeGoogle(t)
	p := NewGoogleProvider(testConfig(srv), option.WithEndpoint(srv.URL+"/"))

	tok, profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, &Profile{Email: "me@example.com", Name: "Me", Picture: "https://pic/me"}, profile)

	_, _, err = p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestTerminalToken_PromptsAndSaves(t *testing.T) {
	srv := fakeGoogle(t)
	cfg := testConfig(srv)
	path := filepath.Join(t.TempDir(), "token.json")

	var out strings.Builder
	tok, err := TerminalToken(context.Background(), cfg, path, strings.NewReader("good-code\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Contains(t, out.String(), "OPEN THIS LINK TO AUTHORIZE GMAIL ACCESS")

	saved, err := TokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
}

func TestTerminalToken_UsesSavedToken(t *testing.T) {
	srv := fakeGoogle(t)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(path, &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}))

	var out strings.Builder
	tok, err := TerminalToken(context.Background(), testConfig(srv), path, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "cached", tok.AccessToken)
	assert.Empty(t, out.String())
}

func TestTokenFromPrompt_EmptyInput(t *testing.T) {
	srv := fakeGoogle(t)
	var out strings.Builder
	_, err := TokenFromPrompt(context.Background(), testConfig(srv), strings.NewReader(""), &out)
	assert.Error(t, err)
}
