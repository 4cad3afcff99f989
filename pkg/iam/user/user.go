package user

import (
	"net/http"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/kernel"
)

// Status is the lifecycle state of a principal.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User is a principal: a human identity that authenticates against the
// service. Users are created on first successful authentication of any kind
// and are never hard-deleted while live credentials reference them;
// deactivation happens through Status and token revocation.
type User struct {
	ID             kernel.UserID  `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	FirstName      string         `db:"first_name" json:"first_name"`
	LastName       string         `db:"last_name" json:"last_name"`
	DisplayName    string         `db:"display_name" json:"display_name"`
	PictureURL     string         `db:"picture_url" json:"picture_url,omitempty"`
	OrganizationID *kernel.OrgID  `db:"organization_id" json:"organization_id,omitempty"`
	Status         Status         `db:"status" json:"status"`
	Metadata       map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// FullName renders the display name, falling back to first/last.
func (u *User) FullName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// OAuthLink associates a user with one federated identity. A user holds at
// most one link per provider; links are upserted on every successful
// federation and never expire on their own. The cached provider access token
// is non-authoritative and may be stale.
type OAuthLink struct {
	ID            string         `db:"id" json:"id"`
	UserID        kernel.UserID  `db:"user_id" json:"user_id"`
	Provider      string         `db:"provider" json:"provider"`
	ProviderEmail string         `db:"provider_email" json:"provider_email"`
	AccessToken   string         `db:"access_token" json:"-"`
	Profile       map[string]any `db:"-" json:"profile,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound  = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeUserSuspended = ErrRegistry.Register("SUSPENDED", errx.TypeForbidden, http.StatusForbidden, "User account is suspended")
	CodeUserInactive  = ErrRegistry.Register("INACTIVE", errx.TypeForbidden, http.StatusForbidden, "User account is not active")
	CodeEmailTaken    = ErrRegistry.Register("EMAIL_TAKEN", errx.TypeConflict, http.StatusConflict, "Email address already registered")
)

func ErrUserNotFound() *errx.Error  { return ErrRegistry.New(CodeUserNotFound) }
func ErrUserSuspended() *errx.Error { return ErrRegistry.New(CodeUserSuspended) }
func ErrUserInactive() *errx.Error  { return ErrRegistry.New(CodeUserInactive) }
func ErrEmailTaken() *errx.Error    { return ErrRegistry.New(CodeEmailTaken) }
