package authsrv_test

import (
	"context"
	"sync"
	"time"

	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/user"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/notifx"
)

type fakeTokenRepo struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byHash: make(map[string]*auth.RefreshToken)}
}

func (r *fakeTokenRepo) SaveRefreshToken(_ context.Context, token auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := token
	r.byHash[token.TokenHash] = &cp
	return nil
}

func (r *fakeTokenRepo) FindRefreshTokenByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeTokenRepo) RevokeRefreshToken(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.byHash[hash]; ok {
		stored.IsRevoked = true
	}
	return nil
}

func (r *fakeTokenRepo) RevokeAllUserTokens(_ context.Context, userID kernel.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.byHash {
		if stored.UserID == userID {
			stored.IsRevoked = true
		}
	}
	return nil
}

func (r *fakeTokenRepo) DeleteExpiredTokens(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, stored := range r.byHash {
		if stored.IsExpired() || stored.IsRevoked {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

func (r *fakeTokenRepo) expire(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.byHash[hash]; ok {
		stored.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

type fakeLinkRepo struct {
	mu     sync.Mutex
	byHash map[string]*auth.MagicLinkToken
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{byHash: make(map[string]*auth.MagicLinkToken)}
}

func (r *fakeLinkRepo) SaveToken(_ context.Context, token auth.MagicLinkToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := token
	r.byHash[token.TokenHash] = &cp
	return nil
}

func (r *fakeLinkRepo) FindByHash(_ context.Context, hash string) (*auth.MagicLinkToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeLinkRepo) Consume(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byHash[hash]
	if !ok || stored.Used {
		return auth.ErrLinkUsed()
	}
	now := time.Now()
	stored.Used = true
	stored.UsedAt = &now
	return nil
}

func (r *fakeLinkRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, stored := range r.byHash {
		if stored.IsExpired() || stored.Used {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[kernel.UserID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[kernel.UserID]*user.User)}
}

func (r *fakeUserRepo) add(u user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := u
	r.byID[u.ID] = &cp
}

func (r *fakeUserRepo) FindByID(_ context.Context, id kernel.UserID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound()
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.byID {
		if stored.Email == email {
			cp := *stored
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound()
}

func (r *fakeUserRepo) Create(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.byID {
		if stored.Email == u.Email {
			return user.ErrEmailTaken()
		}
	}
	cp := u
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; !ok {
		return user.ErrUserNotFound()
	}
	cp := u
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type fakeOAuthLinks struct {
	mu    sync.Mutex
	links map[string]*user.OAuthLink
}

func newFakeOAuthLinks() *fakeOAuthLinks {
	return &fakeOAuthLinks{links: make(map[string]*user.OAuthLink)}
}

func linkKey(provider, providerEmail string) string {
	return provider + "|" + providerEmail
}

func (r *fakeOAuthLinks) Upsert(_ context.Context, link user.OAuthLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := link
	r.links[linkKey(link.Provider, link.ProviderEmail)] = &cp
	return nil
}

func (r *fakeOAuthLinks) FindByProviderEmail(_ context.Context, provider, providerEmail string) (*user.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.links[linkKey(provider, providerEmail)]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeOAuthLinks) FindByUser(_ context.Context, userID kernel.UserID) ([]*user.OAuthLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.OAuthLink
	for _, stored := range r.links {
		if stored.UserID == userID {
			cp := *stored
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOAuthLinks) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

type fakeAssignments struct {
	mu          sync.Mutex
	assignments map[kernel.UserID][]rbac.RoleAssignment
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{assignments: make(map[kernel.UserID][]rbac.RoleAssignment)}
}

func (r *fakeAssignments) grant(userID kernel.UserID, role rbac.RoleName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[userID] = append(r.assignments[userID], rbac.RoleAssignment{
		UserID:   userID,
		RoleName: role,
	})
}

func (r *fakeAssignments) ListForUser(_ context.Context, userID kernel.UserID) ([]rbac.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignments[userID], nil
}

func (r *fakeAssignments) Assign(_ context.Context, a rbac.RoleAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[a.UserID] = append(r.assignments[a.UserID], a)
	return nil
}

func (r *fakeAssignments) Remove(_ context.Context, userID kernel.UserID, role rbac.RoleName, _ *kernel.OrgID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.assignments[userID][:0]
	for _, a := range r.assignments[userID] {
		if a.RoleName != role {
			kept = append(kept, a)
		}
	}
	r.assignments[userID] = kept
	return nil
}

func (r *fakeAssignments) PermissionsForRoles(_ context.Context, _ []rbac.RoleName) ([]string, error) {
	return nil, nil
}

type loginEvent struct {
	userID  kernel.UserID
	method  string
	success bool
}

type fakeAudit struct {
	mu        sync.Mutex
	logins    []loginEvent
	refreshes int
	logouts   int
	created   int
	linked    int
	requested int
}

func (a *fakeAudit) LogLoginAttempt(_ context.Context, userID kernel.UserID, method string, success bool, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, loginEvent{userID: userID, method: method, success: success})
}

func (a *fakeAudit) LogTokenRefresh(_ context.Context, _ kernel.UserID, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
}

func (a *fakeAudit) LogLogout(_ context.Context, _ kernel.UserID, _ string, _ bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logouts++
}

func (a *fakeAudit) LogAccountCreated(_ context.Context, _ kernel.UserID, _ string, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
}

func (a *fakeAudit) LogAccountLinked(_ context.Context, _ kernel.UserID, _ string, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linked++
}

func (a *fakeAudit) LogMagicLinkRequested(_ context.Context, _ string, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requested++
}

func (a *fakeAudit) successfulLogins() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.logins {
		if e.success {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	name       iam.OAuthProvider
	profile    *auth.UserProfile
	profileErr error
	lastState  string
}

func (p *fakeProvider) Name() iam.OAuthProvider { return p.name }

func (p *fakeProvider) AuthorizationURL(state, _ string) (string, error) {
	p.lastState = state
	return "https://provider.example.com/authorize?state=" + state, nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, _, _ string) (string, error) {
	return "provider-access-token", nil
}

func (p *fakeProvider) FetchProfile(_ context.Context, _ string) (*auth.UserProfile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	cp := *p.profile
	return &cp, nil
}

type capturingSender struct {
	mu   sync.Mutex
	sent []notifx.EmailMessage
	err  error
}

func (s *capturingSender) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *capturingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
