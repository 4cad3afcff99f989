package auth

import (
	"context"
	"net/url"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/iam"
)

const (
	linkedinAuthorizeURL = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL     = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinProfileURL   = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInProvider implements ProviderClient for LinkedIn via its OpenID
// Connect userinfo endpoint.
type LinkedInProvider struct {
	cfg  config.OAuthProviderConfig
	http *ProviderHTTPClient

	authorizeURL string
	tokenURL     string
	profileURL   string
}

// NewLinkedInProvider creates the LinkedIn provider client.
func NewLinkedInProvider(cfg config.OAuthProviderConfig, client *ProviderHTTPClient) *LinkedInProvider {
	return &LinkedInProvider{
		cfg:          cfg,
		http:         client,
		authorizeURL: linkedinAuthorizeURL,
		tokenURL:     linkedinTokenURL,
		profileURL:   linkedinProfileURL,
	}
}

func (p *LinkedInProvider) Name() iam.OAuthProvider { return iam.OAuthProviderLinkedIn }

func (p *LinkedInProvider) AuthorizationURL(state, redirectURI string) (string, error) {
	if !p.cfg.HasCredentials() {
		return "", ErrProviderNotConfigured().WithDetail("provider", "linkedin")
	}
	params := url.Values{}
	params.Set("client_id", p.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "openid profile email")
	params.Set("state", state)
	return authorizeURL(p.authorizeURL, params), nil
}

func (p *LinkedInProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	var resp tokenResponse
	if err := p.http.postForm(ctx, p.tokenURL, form, &resp); err != nil {
		return "", ErrExchangeFailed().WithDetail("provider", "linkedin").WithDetail("error", err.Error())
	}
	if resp.AccessToken == "" {
		return "", ErrExchangeFailed().WithDetail("provider", "linkedin").WithDetail("error", resp.ErrorDesc)
	}
	return resp.AccessToken, nil
}

func (p *LinkedInProvider) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	var raw struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Name       string `json:"name"`
		Picture    string `json:"picture"`
	}
	if err := p.http.getJSON(ctx, p.profileURL, accessToken, &raw); err != nil {
		return nil, ErrProfileFetchFailed().WithDetail("provider", "linkedin").WithDetail("error", err.Error())
	}

	return &UserProfile{
		Email:       raw.Email,
		FirstName:   raw.GivenName,
		LastName:    raw.FamilyName,
		DisplayName: raw.Name,
		PictureURL:  raw.Picture,
		Raw: map[string]any{
			"sub":         raw.Sub,
			"email":       raw.Email,
			"given_name":  raw.GivenName,
			"family_name": raw.FamilyName,
			"name":        raw.Name,
			"picture":     raw.Picture,
		},
	}, nil
}
