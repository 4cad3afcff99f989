package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clavehr/identity/pkg/logx"
)

// ProviderHTTPClient is the HTTP client shared by all provider implementations.
// It retries transport errors and 5xx responses with exponential backoff; 4xx
// is terminal because retrying a rejected request cannot succeed.
type ProviderHTTPClient struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewProviderHTTPClient creates the shared client with a bounded per-request
// timeout.
func NewProviderHTTPClient(timeout time.Duration, maxRetries int) *ProviderHTTPClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ProviderHTTPClient{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    250 * time.Millisecond,
	}
}

// Do executes the request built by build, retrying when retryable. The builder
// runs once per attempt because request bodies cannot be replayed.
func (c *ProviderHTTPClient) Do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			logx.WithFields(logx.Fields{
				"url":     req.URL.String(),
				"status":  resp.StatusCode,
				"attempt": attempt,
			}).Warn("provider request failed, retrying")
			lastErr = &providerStatusError{status: resp.StatusCode, body: string(body)}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

type providerStatusError struct {
	status int
	body   string
}

func (e *providerStatusError) Error() string {
	return "provider returned status " + http.StatusText(e.status) + ": " + e.body
}

// postForm POSTs form values and decodes the JSON response into out. A non-2xx
// response after retries is returned as an error.
func (c *ProviderHTTPClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	resp, err := c.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &providerStatusError{status: resp.StatusCode, body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON GETs endpoint with a bearer token and decodes the JSON response.
func (c *ProviderHTTPClient) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	resp, err := c.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &providerStatusError{status: resp.StatusCode, body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// tokenResponse is the common OAuth2 token endpoint response shape.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// authorizeURL renders a consent URL from the endpoint and query parameters.
func authorizeURL(endpoint string, params url.Values) string {
	return endpoint + "?" + params.Encode()
}
