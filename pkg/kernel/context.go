package kernel

// AuthContext is the authenticated identity of one in-flight request. It is
// built once by the auth middleware after credential verification and passed
// down explicitly; handlers must treat it as immutable. Role data inside it is
// a snapshot taken at token issuance and is only as fresh as the access token.
type AuthContext struct {
	UserID         UserID   `json:"user_id"`
	OrganizationID *OrgID   `json:"organization_id,omitempty"`
	Email          string   `json:"email"`
	Role           string   `json:"role"`
	Roles          []string `json:"roles"`
	Status         string   `json:"status"`

	// IsAPIKey marks requests authenticated with an API key rather than a
	// bearer access token. APIKeyID is set only in that case.
	IsAPIKey bool   `json:"is_api_key"`
	APIKeyID string `json:"api_key_id,omitempty"`
}

// IsValid reports whether the context identifies a principal.
func (ac *AuthContext) IsValid() bool {
	return !ac.UserID.IsEmpty()
}

// HasRole reports whether the context carries the given role name.
func (ac *AuthContext) HasRole(role string) bool {
	for _, r := range ac.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// InOrganization reports whether the context belongs to the given organization.
func (ac *AuthContext) InOrganization(orgID OrgID) bool {
	return ac.OrganizationID != nil && *ac.OrganizationID == orgID
}

// ContextKey is the type for values stored in request-scoped storage.
type ContextKey string

const (
	// AuthContextKey is the key the auth middleware stores the AuthContext under.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey is the key for the request correlation id.
	RequestIDKey ContextKey = "request_id"
)
