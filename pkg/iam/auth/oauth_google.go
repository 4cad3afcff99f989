package auth

import (
	"context"
	"net/url"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/iam"
)

const (
	googleAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	googleProfileURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleProvider implements ProviderClient for Google OAuth2.
type GoogleProvider struct {
	cfg  config.OAuthProviderConfig
	http *ProviderHTTPClient

	authorizeURL string
	tokenURL     string
	profileURL   string
}

// NewGoogleProvider creates the Google provider client.
func NewGoogleProvider(cfg config.OAuthProviderConfig, client *ProviderHTTPClient) *GoogleProvider {
	return &GoogleProvider{
		cfg:          cfg,
		http:         client,
		authorizeURL: googleAuthorizeURL,
		tokenURL:     googleTokenURL,
		profileURL:   googleProfileURL,
	}
}

func (p *GoogleProvider) Name() iam.OAuthProvider { return iam.OAuthProviderGoogle }

func (p *GoogleProvider) AuthorizationURL(state, redirectURI string) (string, error) {
	if !p.cfg.HasCredentials() {
		return "", ErrProviderNotConfigured().WithDetail("provider", "google")
	}
	params := url.Values{}
	params.Set("client_id", p.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "openid email profile")
	params.Set("state", state)
	params.Set("access_type", "offline")
	return authorizeURL(p.authorizeURL, params), nil
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	var resp tokenResponse
	if err := p.http.postForm(ctx, p.tokenURL, form, &resp); err != nil {
		return "", ErrExchangeFailed().WithDetail("provider", "google").WithDetail("error", err.Error())
	}
	if resp.AccessToken == "" {
		return "", ErrExchangeFailed().WithDetail("provider", "google").WithDetail("error", resp.ErrorDesc)
	}
	return resp.AccessToken, nil
}

func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	var raw struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Name       string `json:"name"`
		Picture    string `json:"picture"`
	}
	if err := p.http.getJSON(ctx, p.profileURL, accessToken, &raw); err != nil {
		return nil, ErrProfileFetchFailed().WithDetail("provider", "google").WithDetail("error", err.Error())
	}

	return &UserProfile{
		Email:       raw.Email,
		FirstName:   raw.GivenName,
		LastName:    raw.FamilyName,
		DisplayName: raw.Name,
		PictureURL:  raw.Picture,
		Raw: map[string]any{
			"id":          raw.ID,
			"email":       raw.Email,
			"given_name":  raw.GivenName,
			"family_name": raw.FamilyName,
			"name":        raw.Name,
			"picture":     raw.Picture,
		},
	}, nil
}
