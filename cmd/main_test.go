package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/apikey"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/gofiber/fiber/v2"
)

func newErrorHandlerApp(cfg *config.Config, routes map[string]error) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(cfg),
	})
	for path, err := range routes {
		failure := err
		app.Get(path, func(c *fiber.Ctx) error {
			return failure
		})
	}
	return app
}

func TestErrorHandler_CredentialFailuresIndistinguishable(t *testing.T) {
	routes := map[string]error{
		"/invalid":    auth.ErrInvalidToken().WithDetail("reason", "subject mismatch"),
		"/expired":    auth.ErrExpiredToken(),
		"/wrong-type": auth.ErrWrongTokenType(),
		"/revoked":    auth.ErrTokenRevoked(),
		"/link-used":  auth.ErrLinkUsed(),
		"/bad-key":    apikey.ErrInvalidKey(),
		"/bad-ip":     apikey.ErrIPNotAllowed(),
	}
	app := newErrorHandlerApp(&config.Config{}, routes)

	var reference string
	for path := range routes {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if reference == "" {
			reference = string(body)
			continue
		}
		if string(body) != reference {
			t.Errorf("%s: body differs from other credential failures:\n%s\nvs\n%s", path, body, reference)
		}
	}

	if !strings.Contains(reference, "AUTH_INVALID_CREDENTIALS") {
		t.Errorf("body must carry the generic code: %s", reference)
	}
	for _, leak := range []string{"EXPIRED", "WRONG_TOKEN_TYPE", "REVOKED", "LINK_USED", "IP_NOT_ALLOWED", "reason"} {
		if strings.Contains(reference, leak) {
			t.Errorf("body leaks the failure cause %q: %s", leak, reference)
		}
	}
}

func TestErrorHandler_CredentialDetailsSuppressedInDevelopment(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = "development"
	app := newErrorHandlerApp(cfg, map[string]error{
		"/invalid": auth.ErrInvalidToken().WithDetail("reason", "subject mismatch"),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/invalid", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if strings.Contains(string(body), "subject mismatch") {
		t.Errorf("credential failure details must never reach the wire: %s", body)
	}
}

func TestErrorHandler_NonCredentialErrorsKeepTheirCode(t *testing.T) {
	app := newErrorHandlerApp(&config.Config{}, map[string]error{
		"/missing":  apikey.ErrKeyNotFound(),
		"/conflict": apikey.ErrDuplicateName(),
		"/bad":      errx.New("user_id and role are required", errx.TypeValidation),
	})

	for path, want := range map[string]struct {
		status int
		code   string
	}{
		"/missing":  {http.StatusNotFound, "APIKEY_NOT_FOUND"},
		"/conflict": {http.StatusConflict, "APIKEY_DUPLICATE_NAME"},
		"/bad":      {http.StatusBadRequest, string(errx.TypeValidation)},
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != want.status {
			t.Errorf("%s: status %d, want %d", path, resp.StatusCode, want.status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if !strings.Contains(string(body), want.code) {
			t.Errorf("%s: body must carry %s: %s", path, want.code, body)
		}
	}
}
