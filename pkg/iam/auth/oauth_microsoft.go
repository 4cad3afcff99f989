package auth

import (
	"context"
	"net/url"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/iam"
)

const (
	microsoftAuthorizeURL = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	microsoftTokenURL     = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	microsoftProfileURL   = "https://graph.microsoft.com/v1.0/me"
)

// MicrosoftProvider implements ProviderClient for Microsoft identity platform.
// Profile data comes from Microsoft Graph; personal accounts often have no
// "mail" attribute, so userPrincipalName is the email fallback.
type MicrosoftProvider struct {
	cfg  config.OAuthProviderConfig
	http *ProviderHTTPClient

	authorizeURL string
	tokenURL     string
	profileURL   string
}

// NewMicrosoftProvider creates the Microsoft provider client.
func NewMicrosoftProvider(cfg config.OAuthProviderConfig, client *ProviderHTTPClient) *MicrosoftProvider {
	return &MicrosoftProvider{
		cfg:          cfg,
		http:         client,
		authorizeURL: microsoftAuthorizeURL,
		tokenURL:     microsoftTokenURL,
		profileURL:   microsoftProfileURL,
	}
}

func (p *MicrosoftProvider) Name() iam.OAuthProvider { return iam.OAuthProviderMicrosoft }

func (p *MicrosoftProvider) AuthorizationURL(state, redirectURI string) (string, error) {
	if !p.cfg.HasCredentials() {
		return "", ErrProviderNotConfigured().WithDetail("provider", "microsoft")
	}
	params := url.Values{}
	params.Set("client_id", p.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "openid email profile User.Read")
	params.Set("state", state)
	params.Set("response_mode", "query")
	return authorizeURL(p.authorizeURL, params), nil
}

func (p *MicrosoftProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	form.Set("scope", "openid email profile User.Read")

	var resp tokenResponse
	if err := p.http.postForm(ctx, p.tokenURL, form, &resp); err != nil {
		return "", ErrExchangeFailed().WithDetail("provider", "microsoft").WithDetail("error", err.Error())
	}
	if resp.AccessToken == "" {
		return "", ErrExchangeFailed().WithDetail("provider", "microsoft").WithDetail("error", resp.ErrorDesc)
	}
	return resp.AccessToken, nil
}

func (p *MicrosoftProvider) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	var raw struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
		DisplayName       string `json:"displayName"`
	}
	if err := p.http.getJSON(ctx, p.profileURL, accessToken, &raw); err != nil {
		return nil, ErrProfileFetchFailed().WithDetail("provider", "microsoft").WithDetail("error", err.Error())
	}

	email := raw.Mail
	if email == "" {
		email = raw.UserPrincipalName
	}
	return &UserProfile{
		Email:       email,
		FirstName:   raw.GivenName,
		LastName:    raw.Surname,
		DisplayName: raw.DisplayName,
		Raw: map[string]any{
			"id":                raw.ID,
			"mail":              raw.Mail,
			"userPrincipalName": raw.UserPrincipalName,
			"givenName":         raw.GivenName,
			"surname":           raw.Surname,
			"displayName":       raw.DisplayName,
		},
	}, nil
}
