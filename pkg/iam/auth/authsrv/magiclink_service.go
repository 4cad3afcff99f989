package authsrv

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/clavehr/identity/pkg/notifx"
	"github.com/google/uuid"
)

// MagicLinkTemplate is the notifx template name for link delivery. The
// container registers it at boot.
const MagicLinkTemplate = "magic_link"

// MagicLinkConfig is the service's slice of application configuration.
type MagicLinkConfig struct {
	TTL         time.Duration
	FrontendURL string
	LinkPath    string
	FromAddress string
	FromName    string
}

// MagicLinkService implements passwordless email authentication: a single-use
// token delivered by email, exchanged for credentials on verification.
type MagicLinkService struct {
	links       auth.MagicLinkRepository
	users       user.UserRepository
	credentials *CredentialService
	mailer      *notifx.Client
	audit       auth.AuditService
	cfg         MagicLinkConfig
}

// NewMagicLinkService wires the magic link service.
func NewMagicLinkService(
	links auth.MagicLinkRepository,
	users user.UserRepository,
	credentials *CredentialService,
	mailer *notifx.Client,
	audit auth.AuditService,
	cfg MagicLinkConfig,
) *MagicLinkService {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &MagicLinkService{
		links:       links,
		users:       users,
		credentials: credentials,
		mailer:      mailer,
		audit:       audit,
		cfg:         cfg,
	}
}

// RequestLink creates a magic link for the address and emails it. Unknown
// addresses get a new active principal: magic link doubles as sign-up.
// Delivery failure is logged but does not roll the token back; the caller
// still gets success so the endpoint leaks nothing about delivery.
func (s *MagicLinkService) RequestLink(ctx context.Context, email, redirectURI, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return errx.New("invalid email address", errx.TypeValidation)
	}

	u, err := s.findOrCreateUser(ctx, email, ip)
	if err != nil {
		return err
	}

	rawToken, err := auth.NewRawToken()
	if err != nil {
		return err
	}
	now := time.Now()
	token := auth.MagicLinkToken{
		ID:          uuid.NewString(),
		TokenHash:   auth.HashToken(rawToken),
		UserID:      u.ID,
		Email:       email,
		RedirectURI: redirectURI,
		ExpiresAt:   now.Add(s.cfg.TTL),
		CreatedAt:   now,
	}
	if err := s.links.SaveToken(ctx, token); err != nil {
		return errx.Wrap(err, "failed to persist magic link token", errx.TypeInternal)
	}

	s.audit.LogMagicLinkRequested(ctx, email, ip)

	link := s.buildLink(rawToken, redirectURI)
	msg := notifx.EmailMessage{
		From:    s.cfg.FromAddress,
		To:      []string{email},
		Subject: "Your sign-in link",
	}
	data := map[string]any{
		"Link":     link,
		"Minutes":  int(s.cfg.TTL.Minutes()),
		"FromName": s.cfg.FromName,
	}
	if err := s.mailer.SendTemplatedEmail(ctx, MagicLinkTemplate, data, msg); err != nil {
		logx.WithError(err).WithField("email", email).Error("magic link delivery failed")
	}
	return nil
}

// Verify consumes a magic link token and issues credentials. Consumption is
// atomic: of two concurrent verifications of the same link at most one gets
// past Consume.
func (s *MagicLinkService) Verify(ctx context.Context, rawToken, ip string) (*auth.Credentials, error) {
	hash := auth.HashToken(rawToken)

	token, err := s.links.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, auth.ErrLinkNotFound()
	}
	if token.Used {
		return nil, auth.ErrLinkUsed()
	}
	if token.IsExpired() {
		return nil, auth.ErrLinkExpired()
	}

	// The row-level conditional update decides races, not the checks above.
	if err := s.links.Consume(ctx, hash); err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	creds, err := s.credentials.IssueCredentials(ctx, u)
	if err != nil {
		s.audit.LogLoginAttempt(ctx, u.ID, "magic_link", false, ip)
		return nil, err
	}
	s.audit.LogLoginAttempt(ctx, u.ID, "magic_link", true, ip)
	return creds, nil
}

func (s *MagicLinkService) findOrCreateUser(ctx context.Context, email, ip string) (*user.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errx.Is(err, user.ErrUserNotFound()) {
		return nil, err
	}

	now := time.Now()
	created := user.User{
		ID:        kernel.NewUserID(uuid.NewString()),
		Email:     email,
		Status:    user.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, created); err != nil {
		// A concurrent request may have created the same address first.
		if errx.Is(err, user.ErrEmailTaken()) {
			return s.users.FindByEmail(ctx, email)
		}
		return nil, err
	}
	s.audit.LogAccountCreated(ctx, created.ID, "magic_link", ip)
	return &created, nil
}

func (s *MagicLinkService) buildLink(rawToken, redirectURI string) string {
	params := url.Values{}
	params.Set("token", rawToken)
	if redirectURI != "" {
		params.Set("redirect_uri", redirectURI)
	}
	return s.cfg.FrontendURL + s.cfg.LinkPath + "?" + params.Encode()
}
