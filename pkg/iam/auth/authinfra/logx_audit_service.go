package authinfra

import (
	"context"
	"time"

	"github.com/clavehr/identity/pkg/kernel"
	"github.com/clavehr/identity/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogLoginAttempt(_ context.Context, userID kernel.UserID, method string, success bool, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "login_attempt",
		"user_id":     userID.String(),
		"method":      method,
		"success":     success,
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: login attempt")
}

func (s *LogxAuditService) LogTokenRefresh(_ context.Context, userID kernel.UserID, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "token_refresh",
		"user_id":     userID.String(),
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: token refresh")
}

func (s *LogxAuditService) LogLogout(_ context.Context, userID kernel.UserID, ip string, everywhere bool) {
	logx.WithFields(logx.Fields{
		"audit_event": "logout",
		"user_id":     userID.String(),
		"ip":          ip,
		"everywhere":  everywhere,
		"timestamp":   time.Now(),
	}).Info("Audit: logout")
}

func (s *LogxAuditService) LogAccountCreated(_ context.Context, userID kernel.UserID, method string, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "account_created",
		"user_id":     userID.String(),
		"method":      method,
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: account created")
}

func (s *LogxAuditService) LogAccountLinked(_ context.Context, userID kernel.UserID, provider string, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "account_linked",
		"user_id":     userID.String(),
		"provider":    provider,
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: account linked")
}

func (s *LogxAuditService) LogMagicLinkRequested(_ context.Context, email string, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "magic_link_requested",
		"email":       email,
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: magic link requested")
}
