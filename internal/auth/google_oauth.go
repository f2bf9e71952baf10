package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Scopes requested at login: identity plus read access to Gmail.
var Scopes = []string{"openid", "email", "profile", gmail.GmailReadonlyScope}

// NewConfig builds the OAuth client config for Google.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// Profile is the Google account that completed the login.
type Profile struct {
	Email   string
	Name    string
	Picture string
}

// GoogleProvider runs the authorization code flow against Google.
type GoogleProvider struct {
	Config *oauth2.Config
	// Extra options for the userinfo client, appended after the token source.
	userinfoOptions []option.ClientOption
}

func NewGoogleProvider(cfg *oauth2.Config, opts ...option.ClientOption) *GoogleProvider {
	return &GoogleProvider{Config: cfg, userinfoOptions: opts}
}

// LoginURL returns the consent page URL. Offline access with a forced
// consent prompt makes Google hand out a refresh token every time.
func (p *GoogleProvider) LoginURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and looks up who the
// token belongs to.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, *Profile, error) {
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(p.Config.TokenSource(ctx, tok))}, p.userinfoOptions...)
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("fetch user info: %w", err)
	}
	if info.Email == "" {
		return nil, nil, fmt.Errorf("user info has no email")
	}
	return tok, &Profile{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}
