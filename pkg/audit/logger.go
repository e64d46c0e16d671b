package audit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/crmgate/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
	method    string
	path      string
}

// WithRequest records the HTTP request details that events built from ctx
// should carry.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{
		ip:        clientIP(r),
		userAgent: r.UserAgent(),
		method:    r.Method,
		path:      r.URL.Path,
	})
}

// clientIP prefers the first X-Forwarded-For hop
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// NewEvent builds an event populated with the actor and request details
// found in ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		UserID:    parseID(contextkeys.GetUserID(ctx)),
		TenantID:  parseID(contextkeys.GetTenantID(ctx)),
		Metadata:  make(map[string]interface{}),
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		event.IPAddress = info.ip
		event.UserAgent = info.userAgent
		event.Method = info.method
		event.Path = info.path
	}
	return event
}

func parseID(s string) *int64 {
	if s == "" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// LogDenied records an authorization denial
func LogDenied(ctx context.Context, logger Logger, resourceType, resourceID, reason string) error {
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = reason
	return logger.Log(ctx, event)
}

// LogMutation records a successful write
func LogMutation(ctx context.Context, logger Logger, eventType EventType, resourceType, resourceID string, changes *ChangeDetails) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	return logger.Log(ctx, event)
}

// NoOp returns a logger that discards every event
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                      { return nil }
