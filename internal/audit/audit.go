// Package audit records security-relevant events with a severity derived
// from the event type. Recording is best-effort: a broken sink never fails
// the request that triggered the event.
package audit

import (
	"context"
	"strings"
	"time"
)

// EventType names a security-relevant occurrence.
type EventType string

const (
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventOAuthSuccess       EventType = "OAUTH_SUCCESS"
	EventOAuthFailed        EventType = "OAUTH_FAILED"
	EventTokenRefresh       EventType = "TOKEN_REFRESH"
	EventTokenRefreshFailed EventType = "TOKEN_REFRESH_FAILED"
	EventUserInfoRequest    EventType = "USER_INFO_REQUEST"
	EventUserRegistered     EventType = "USER_REGISTERED"
	EventLogout             EventType = "LOGOUT"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
)

// RiskLevel grades an event for alerting and retention policy.
type RiskLevel string

const (
	RiskInfo     RiskLevel = "INFO"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Risk derives the severity from the event type. The mapping is fixed;
// callers never choose a severity themselves.
func Risk(t EventType) RiskLevel {
	switch t {
	case EventLoginFailed, EventOAuthFailed, EventTokenRefreshFailed:
		return RiskHigh
	case EventUnauthorizedAccess:
		return RiskCritical
	case EventRateLimitExceeded:
		return RiskMedium
	case EventLoginSuccess, EventOAuthSuccess, EventUserRegistered:
		return RiskLow
	default:
		return RiskInfo
	}
}

// Event is one recorded occurrence. Details hold event-specific context;
// secrets and raw tokens must never be put there.
type Event struct {
	ID        string
	Type      EventType
	Risk      RiskLevel
	Principal string
	UserID    string
	ClientIP  string
	UserAgent string
	RequestID string
	Method    string
	Path      string
	Status    int
	Details   map[string]any
	At        time.Time
}

// Store persists events. Implementations must tolerate concurrent appends.
type Store interface {
	Append(ctx context.Context, e Event) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so every
// event recorded during the request carries it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
