package daemon

import "log/slog"

// AuditLogger writes structured audit events for security-relevant
// control-plane actions. All methods are nil-safe: calling any method
// on a nil *AuditLogger is a no-op, so callers never need a nil check.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger writing under the "audit" group.
func NewAuditLogger(handler slog.Handler) *AuditLogger {
	return &AuditLogger{logger: slog.New(handler).WithGroup("audit")}
}

// DaemonAPIAccess logs a control-plane HTTP request.
func (a *AuditLogger) DaemonAPIAccess(method, path string, status int) {
	if a == nil {
		return
	}
	a.logger.Info("daemon_api_access", "method", method, "path", path, "status", status)
}

// CookieAuthDecision logs an accept/reject decision for the Unix-socket
// cookie handshake.
func (a *AuditLogger) CookieAuthDecision(remote, result string) {
	if a == nil {
		return
	}
	a.logger.Info("cookie_auth_decision", "remote", remote, "result", result)
}

// SeedPolicyChange logs a seed/unseed mutation made through the
// control API.
func (a *AuditLogger) SeedPolicyChange(action, rid string) {
	if a == nil {
		return
	}
	a.logger.Info("seed_policy_change", "action", action, "rid", rid)
}

// FollowPolicyChange logs a follow/unfollow mutation made through the
// control API.
func (a *AuditLogger) FollowPolicyChange(action, nodeID string) {
	if a == nil {
		return
	}
	a.logger.Info("follow_policy_change", "action", action, "node", nodeID)
}
