package iam

import (
	"net/http"

	"github.com/clavehr/identity/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("IAM")

// Credential-validation failures deliberately share one message: the caller
// must not be able to tell an expired token from a bad signature or a wrong
// token type. The distinguishing code is for internal logs only.
var (
	CodeUnauthorized       = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeAccessDenied       = ErrRegistry.Register("ACCESS_DENIED", errx.TypeForbidden, http.StatusForbidden, "Access denied")
)

func ErrUnauthorized() *errx.Error       { return ErrRegistry.New(CodeUnauthorized) }
func ErrInvalidCredentials() *errx.Error { return ErrRegistry.New(CodeInvalidCredentials) }
func ErrAccessDenied() *errx.Error       { return ErrRegistry.New(CodeAccessDenied) }

// OAuthProvider enumerates the supported federated identity providers.
type OAuthProvider string

const (
	OAuthProviderGoogle    OAuthProvider = "google"
	OAuthProviderMicrosoft OAuthProvider = "microsoft"
	OAuthProviderLinkedIn  OAuthProvider = "linkedin"
)

// IsValid reports whether p names a supported provider.
func (p OAuthProvider) IsValid() bool {
	switch p {
	case OAuthProviderGoogle, OAuthProviderMicrosoft, OAuthProviderLinkedIn:
		return true
	}
	return false
}

// DisplayName returns the human-readable provider name.
func (p OAuthProvider) DisplayName() string {
	switch p {
	case OAuthProviderGoogle:
		return "Google"
	case OAuthProviderMicrosoft:
		return "Microsoft"
	case OAuthProviderLinkedIn:
		return "LinkedIn"
	default:
		return "Unknown"
	}
}
