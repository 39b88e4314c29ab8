package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/identity"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs an authentication event
	LogAuthentication(ctx context.Context, eventType EventType, userUUID *uuid.UUID, subjectID string, status EventStatus, message string) error

	// LogAuthorization logs an authorization event
	LogAuthorization(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogPermissionChange logs a document or application permission mutation
	LogPermissionChange(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error

	// LogAdminAction logs an admin action event
	LogAdminAction(ctx context.Context, eventType EventType, adminUUID *uuid.UUID, targetUUID *uuid.UUID, message string) error

	// LogAccess logs a resource access event
	LogAccess(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, message string) error

	// LogHTTPRequest logs an HTTP request (for middleware)
	LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// contextKey is the type for context keys
type contextKey string

const (
	// AuditLoggerKey is the context key for the audit logger
	AuditLoggerKey contextKey = "audit_logger"

	// RequestStartTimeKey is the context key for request start time
	RequestStartTimeKey contextKey = "request_start_time"
)

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return newNoOpLogger()
}

// WithRequestStartTime adds the request start time to the context
func WithRequestStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, t)
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(RequestStartTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// eventSink persists a single audit event.
type eventSink interface {
	Log(ctx context.Context, event *AuditEvent) error
}

// eventLogger layers the Logger convenience methods over an eventSink so
// each backend only implements Log and Close.
type eventLogger struct {
	sink eventSink
}

func (e eventLogger) LogAuthentication(ctx context.Context, eventType EventType, userUUID *uuid.UUID, subjectID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserUUID = userUUID
	event.SubjectID = subjectID
	event.Message = message
	event.ResourceType = ResourceTypeUser
	return e.sink.Log(ctx, event)
}

func (e eventLogger) LogAuthorization(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserUUID = userUUID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return e.sink.Log(ctx, event)
}

func (e eventLogger) LogPermissionChange(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserUUID = userUUID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return e.sink.Log(ctx, event)
}

func (e eventLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUUID *uuid.UUID, targetUUID *uuid.UUID, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserUUID = adminUUID
	event.Message = message
	if targetUUID != nil {
		event.Metadata["target_user_uuid"] = targetUUID.String()
	}
	return e.sink.Log(ctx, event)
}

func (e eventLogger) LogAccess(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserUUID = userUUID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return e.sink.Log(ctx, event)
}

func (e eventLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	status := EventStatusSuccess
	if statusCode >= 400 {
		status = EventStatusFailure
	}
	if statusCode == http.StatusForbidden {
		status = EventStatusDenied
	}

	event := buildBaseEvent(ctx, r, EventTypeAccessDocumentRead, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return e.sink.Log(ctx, event)
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct {
	eventLogger
}

func newNoOpLogger() *noOpLogger {
	l := &noOpLogger{}
	l.eventLogger = eventLogger{sink: l}
	return l
}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// extractRequestInfo extracts the acting identity and request context
func extractRequestInfo(ctx context.Context, r *http.Request) (userUUID *uuid.UUID, subjectID string, ipAddress, userAgent, requestID string) {
	if id, ok := identity.Current(ctx); ok {
		u := id.Ref.UUID
		userUUID = &u
		subjectID = id.Ref.SubjectID
	}

	if reqID := getContextString(ctx, "request_id"); reqID != "" {
		requestID = reqID
	}

	if r != nil {
		ipAddress = getClientIP(r)
		userAgent = r.UserAgent()
	}

	return
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	return r.RemoteAddr
}

// getContextString safely extracts a string value from context
func getContextString(ctx context.Context, key string) string {
	if val := ctx.Value(contextKey(key)); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	userUUID, subjectID, ipAddress, userAgent, requestID := extractRequestInfo(ctx, r)

	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserUUID:  userUUID,
		SubjectID: subjectID,
		APIKeyID:  GetAPIKeyID(ctx),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		RequestID: requestID,
		Metadata:  make(map[string]interface{}),
	}

	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// QuickLog is a convenience function for simple audit logging
func QuickLog(ctx context.Context, eventType EventType, status EventStatus, message string) error {
	logger := FromContext(ctx)
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Message:   message,
	}
	return logger.Log(ctx, event)
}

// LogSuccess logs a successful event with a message
func LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.Message = message
	if metadata != nil {
		event.Metadata = metadata
	}
	return logger.Log(ctx, event)
}

// LogFailure logs a failed event with an error
func LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusFailure)
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return logger.Log(ctx, event)
}

// LogDenied logs an access denied event
func LogDenied(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, reason string) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return logger.Log(ctx, event)
}
