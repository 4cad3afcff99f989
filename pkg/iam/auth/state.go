package auth

import (
	"context"
	"sync"
	"time"

	"github.com/clavehr/identity/pkg/iam"
)

// MemoryStateManager is the in-process StateManager, for development and
// single-instance deployments. Multi-instance deployments need the Redis
// implementation so a callback can land on any instance.
type MemoryStateManager struct {
	mu     sync.Mutex
	states map[string]memoryState
	ttl    time.Duration
}

type memoryState struct {
	payload   StatePayload
	expiresAt time.Time
}

// NewMemoryStateManager creates the in-memory state manager.
func NewMemoryStateManager(ttl time.Duration) *MemoryStateManager {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryStateManager{
		states: make(map[string]memoryState),
		ttl:    ttl,
	}
}

func (m *MemoryStateManager) Issue(_ context.Context, provider iam.OAuthProvider, redirectURI string) (string, error) {
	state, err := NewRawToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
	m.states[state] = memoryState{
		payload: StatePayload{
			Provider:    provider,
			RedirectURI: redirectURI,
			CreatedAt:   now,
		},
		expiresAt: now.Add(m.ttl),
	}
	return state, nil
}

func (m *MemoryStateManager) Consume(_ context.Context, state string) (*StatePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.states[state]
	if !ok {
		return nil, ErrInvalidState()
	}
	delete(m.states, state)
	if time.Now().After(entry.expiresAt) {
		return nil, ErrInvalidState().WithDetail("reason", "expired")
	}
	payload := entry.payload
	return &payload, nil
}

// sweepLocked drops expired states so abandoned flows don't accumulate.
func (m *MemoryStateManager) sweepLocked(now time.Time) {
	for state, entry := range m.states {
		if now.After(entry.expiresAt) {
			delete(m.states, state)
		}
	}
}
