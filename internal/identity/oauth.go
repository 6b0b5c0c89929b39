// Package identity integrates the external identity provider that proves
// who is behind an authorization attempt.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity is the provider's answer about the authenticated person.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Provider redirects users out for authentication and exchanges the
// returned code for an identity.
type Provider interface {
	// AuthCodeURL builds the provider redirect carrying state.
	AuthCodeURL(state string) string
	// Exchange trades the callback code for the authenticated identity.
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Config describes one OAuth2 provider. Endpoint URLs are explicit so any
// provider with a userinfo endpoint works.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// OAuth is the oauth2-backed Provider.
type OAuth struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewOAuth constructs the provider from explicit endpoints.
func NewOAuth(cfg Config) *OAuth {
	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

var _ Provider = (*OAuth)(nil)

// AuthCodeURL builds the provider redirect carrying state.
func (p *OAuth) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// Exchange trades the code for a token and resolves the userinfo endpoint.
func (p *OAuth) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	resp, err := p.conf.Client(ctx, tok).Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	// "sub" is the OIDC field; "id" covers plain OAuth2 providers.
	var ui struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	sub := ui.Sub
	if sub == "" {
		sub = ui.ID
	}
	return &Identity{Subject: sub, Email: ui.Email, Name: ui.Name}, nil
}
