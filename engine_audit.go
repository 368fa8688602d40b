package tokenforge

import (
	"context"
	"errors"
	"time"

	"github.com/markjoyeuxcom/tokenforge/refresh"
)

const (
	auditEventTokenIssue             = "token_issue"
	auditEventTokenRefresh           = "token_refresh"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventTokenLogout            = "token_logout"
	auditEventAccessRevoke           = "access_revoke"
	auditEventSignatureInvalid       = "validate_signature_invalid"
	auditEventValidateUnexpectedFail = "validate_unexpected_failure"
)

// AuditErrorCode is the stable machine-readable error label recorded in
// audit events. Raw error strings never appear in events.
type AuditErrorCode string

const (
	auditErrRefreshReuse   AuditErrorCode = "refresh_reuse"
	auditErrRefreshExpired AuditErrorCode = "refresh_expired"
	auditErrInvalidToken   AuditErrorCode = "invalid_token"
	auditErrUserNotFound   AuditErrorCode = "user_not_found"
	auditErrTokenExpired   AuditErrorCode = "token_expired"
	auditErrSignature      AuditErrorCode = "signature_invalid"
	auditErrBlacklisted    AuditErrorCode = "blacklisted"
	auditErrMalformed      AuditErrorCode = "malformed"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	if kind, ok := ValidationKindOf(err); ok {
		switch kind {
		case KindExpired:
			return auditErrTokenExpired
		case KindSignatureInvalid:
			return auditErrSignature
		case KindBlacklisted:
			return auditErrBlacklisted
		case KindMalformed:
			return auditErrMalformed
		default:
			return auditErrInternal
		}
	}

	switch {
	case errors.Is(err, refresh.ErrTokenReused):
		return auditErrRefreshReuse
	case errors.Is(err, refresh.ErrTokenExpired):
		return auditErrRefreshExpired
	case errors.Is(err, refresh.ErrTokenNotFound),
		errors.Is(err, refresh.ErrInvalidValue):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, refresh.ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
