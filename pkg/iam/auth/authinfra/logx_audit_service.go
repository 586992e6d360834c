package authinfra

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, tenantName, username string, success bool, ip string) {
	s.entry(ctx, "login_attempt", success, logx.Fields{
		"tenant_name": tenantName,
		"username":    username,
		"ip":          ip,
	}).Info("Audit: login attempt")
}

func (s *LogxAuditService) LogAuthorize(ctx context.Context, clientID kernel.ClientID, userID kernel.UserID, tenantID kernel.TenantID, success bool, reason string) {
	s.entry(ctx, "authorize", success, logx.Fields{
		"client_id": clientID,
		"user_id":   userID,
		"tenant_id": tenantID,
		"reason":    reason,
	}).Info("Audit: authorize")
}

func (s *LogxAuditService) LogConsent(ctx context.Context, clientID kernel.ClientID, flowID, action string) {
	s.entry(ctx, "consent", action == "allow", logx.Fields{
		"client_id": clientID,
		"flow_id":   flowID,
		"action":    action,
	}).Info("Audit: consent")
}

func (s *LogxAuditService) LogCodeExchange(ctx context.Context, clientID kernel.ClientID, subject string, success bool, reason string) {
	s.entry(ctx, "code_exchange", success, logx.Fields{
		"client_id": clientID,
		"subject":   subject,
		"reason":    reason,
	}).Info("Audit: authorization code exchange")
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, clientID kernel.ClientID, subject string, success bool, reason string) {
	s.entry(ctx, "token_refresh", success, logx.Fields{
		"client_id": clientID,
		"subject":   subject,
		"reason":    reason,
	}).Info("Audit: token refresh")
}

func (s *LogxAuditService) entry(ctx context.Context, event string, success bool, fields logx.Fields) *logx.Entry {
	fields["audit_event"] = event
	fields["success"] = success
	return logx.WithFields(fields).WithContext(ctx)
}
