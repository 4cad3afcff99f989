package authinfra

import (
	"context"
	"time"

	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/logx"
)

// CleanupService periodically deletes expired refresh tokens and spent or
// expired magic link rows. Deletion is hygiene, not correctness: the read
// paths already reject expired rows.
type CleanupService struct {
	tokens   auth.TokenRepository
	links    auth.MagicLinkRepository
	interval time.Duration
}

// NewCleanupService creates the sweeper.
func NewCleanupService(tokens auth.TokenRepository, links auth.MagicLinkRepository, interval time.Duration) *CleanupService {
	if interval == 0 {
		interval = time.Hour
	}
	return &CleanupService{
		tokens:   tokens,
		links:    links,
		interval: interval,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Call it in its
// own goroutine from the composition root.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logx.WithField("interval", s.interval.String()).Info("token cleanup service started")
	for {
		select {
		case <-ctx.Done():
			logx.Info("token cleanup service stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	tokens, err := s.tokens.DeleteExpiredTokens(ctx)
	if err != nil {
		logx.WithError(err).Error("refresh token cleanup failed")
	}
	links, err := s.links.DeleteExpired(ctx)
	if err != nil {
		logx.WithError(err).Error("magic link cleanup failed")
	}
	if tokens > 0 || links > 0 {
		logx.WithFields(logx.Fields{
			"refresh_tokens": tokens,
			"magic_links":    links,
		}).Info("expired credentials swept")
	}
}
