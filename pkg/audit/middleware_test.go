package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger records events in memory; safe for async sinks.
type mockLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
}

func (m *mockLogger) Log(ctx context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockLogger) LogAuthentication(ctx context.Context, eventType EventType, userUUID *uuid.UUID, subjectID string, status EventStatus, message string) error {
	return m.Log(ctx, &AuditEvent{EventType: eventType, Status: status, UserUUID: userUUID, SubjectID: subjectID, Message: message})
}

func (m *mockLogger) LogAuthorization(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return m.Log(ctx, &AuditEvent{EventType: eventType, Status: status, UserUUID: userUUID, ResourceType: resourceType, ResourceID: resourceID, Message: message})
}

func (m *mockLogger) LogPermissionChange(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return m.Log(ctx, &AuditEvent{EventType: eventType, Status: EventStatusSuccess, UserUUID: userUUID, ResourceType: resourceType, ResourceID: resourceID, Changes: changes, Message: message})
}

func (m *mockLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUUID *uuid.UUID, targetUUID *uuid.UUID, message string) error {
	return m.Log(ctx, &AuditEvent{EventType: eventType, Status: EventStatusSuccess, UserUUID: adminUUID, Message: message})
}

func (m *mockLogger) LogAccess(ctx context.Context, eventType EventType, userUUID *uuid.UUID, resourceType ResourceType, resourceID string, message string) error {
	return m.Log(ctx, &AuditEvent{EventType: eventType, Status: EventStatusSuccess, UserUUID: userUUID, ResourceType: resourceType, ResourceID: resourceID, Message: message})
}

func (m *mockLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return m.Log(ctx, &AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventTypeAccessDocumentRead,
		Method:     r.Method,
		Path:       r.URL.Path,
		StatusCode: statusCode,
		Metadata:   map[string]interface{}{"duration_ms": duration.Milliseconds()},
	})
}

func (m *mockLogger) Close() error { return nil }

// GetEvents returns a snapshot of recorded events.
func (m *mockLogger) GetEvents() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*AuditEvent, len(m.events))
	copy(result, m.events)
	return result
}

func (m *mockLogger) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func serveAudited(t *testing.T, sink *mockLogger, logAll bool, method, path string, status int) *httptest.ResponseRecorder {
	t.Helper()
	wrapped := NewMiddleware(sink, logAll).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestMiddleware_LogsAllRequests(t *testing.T) {
	sink := &mockLogger{}
	rec := serveAudited(t, sink, true, http.MethodGet, "/documents", http.StatusOK)

	assert.Equal(t, http.StatusOK, rec.Code)
	events := sink.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, http.MethodGet, events[0].Method)
	assert.Equal(t, "/documents", events[0].Path)
	assert.Equal(t, http.StatusOK, events[0].StatusCode)
}

func TestMiddleware_MutationsOnly(t *testing.T) {
	sink := &mockLogger{}

	serveAudited(t, sink, false, http.MethodGet, "/documents", http.StatusOK)
	assert.Empty(t, sink.GetEvents(), "reads are not logged")

	serveAudited(t, sink, false, http.MethodPost, "/documents", http.StatusCreated)
	assert.Len(t, sink.GetEvents(), 1, "mutations are logged")
}

func TestMiddleware_ErrorsAlwaysLogged(t *testing.T) {
	sink := &mockLogger{}
	serveAudited(t, sink, false, http.MethodGet, "/documents", http.StatusInternalServerError)

	events := sink.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, http.StatusInternalServerError, events[0].StatusCode)
}

func TestMiddleware_SensitiveEndpointsAlwaysLogged(t *testing.T) {
	sink := &mockLogger{}
	for _, path := range []string{"/auth/verify", "/admin/users", "/audit/events", "/apikeys"} {
		sink.reset()
		serveAudited(t, sink, false, http.MethodGet, path, http.StatusOK)
		assert.Len(t, sink.GetEvents(), 1, "GET %s", path)
	}

	sink.reset()
	serveAudited(t, sink, false, http.MethodGet, "/documents/doc-1", http.StatusOK)
	assert.Empty(t, sink.GetEvents())
}

func TestAuditResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.True(t, rw.written)

	// Later writes cannot change the recorded status.
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.statusCode)

	n, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAPIKeyIDContext(t *testing.T) {
	ctx := WithAPIKeyID(context.Background(), 42)

	id := GetAPIKeyID(ctx)
	require.NotNil(t, id)
	assert.Equal(t, int64(42), *id)

	assert.Nil(t, GetAPIKeyID(context.Background()))
}

func TestQuickLogHelpers(t *testing.T) {
	sink := &mockLogger{}
	ctx := WithLogger(context.Background(), sink)

	require.NoError(t, QuickLog(ctx, EventTypeAuthKeyVerified, EventStatusSuccess, "key verified"))
	require.NoError(t, LogSuccess(ctx, EventTypeKeyCreate, "api key created", map[string]interface{}{"key_id": 7}))
	require.NoError(t, LogFailure(ctx, EventTypeKeyCreate, "mint failed", assert.AnError))
	require.NoError(t, LogDenied(ctx, EventTypeAuthzAccessDenied, ResourceTypeDocument, "doc-123", "insufficient permissions"))

	events := sink.GetEvents()
	require.Len(t, events, 4)
	assert.Equal(t, "key verified", events[0].Message)
	assert.Equal(t, 7, events[1].Metadata["key_id"])
	assert.Equal(t, EventStatusFailure, events[2].Status)
	assert.NotEmpty(t, events[2].ErrorMessage)
	assert.Equal(t, EventStatusDenied, events[3].Status)
	assert.Equal(t, "doc-123", events[3].ResourceID)
	assert.Contains(t, events[3].Message, "Access denied")
}
