package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger, mock
}

func eventColumns() []string {
	return []string{
		"id", "timestamp", "event_type", "status",
		"user_uuid", "subject_id", "api_key_id",
		"resource_type", "resource_id", "resource_name",
		"ip_address", "user_agent", "request_id",
		"method", "path", "status_code",
		"message", "error_message", "metadata", "changes",
	}
}

func TestNewDBLogger(t *testing.T) {
	t.Run("creates table on construction", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Nil(t, logger)
		assert.ErrorContains(t, err, "database connection is required")
	})

	t.Run("table creation failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnError(sql.ErrConnDone)
		logger, err := NewDBLogger(db)
		assert.Nil(t, logger)
		assert.ErrorContains(t, err, "failed to ensure audit_logs table")
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("inserts event and captures id", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		userUUID := uuid.New()
		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAuthKeyVerified,
			Status:    EventStatusSuccess,
			UserUUID:  &userUUID,
			SubjectID: "svc-billing",
			Message:   "key verified",
			Metadata:  map[string]interface{}{"key_id": float64(42)},
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.Equal(t, int64(17), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serializes change details", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAuthzPermissionGrant,
			Status:    EventStatusSuccess,
			Changes: &ChangeDetails{
				Before: map[string]interface{}{"permission": "read"},
				After:  map[string]interface{}{"permission": "write"},
			},
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnError(sql.ErrConnDone)

		err := logger.Log(context.Background(), &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeKeyCreate,
			Status:    EventStatusFailure,
		})
		assert.ErrorContains(t, err, "failed to insert audit log")
	})

	t.Run("unmarshalable metadata", func(t *testing.T) {
		logger, _ := newMockLogger(t)
		err := logger.Log(context.Background(), &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeKeyCreate,
			Status:    EventStatusSuccess,
			Metadata:  map[string]interface{}{"bad": make(chan int)},
		})
		assert.ErrorContains(t, err, "failed to marshal metadata")
	})
}

func TestDBLogger_ConvenienceMethods(t *testing.T) {
	// The shared convenience layer routes through Log, so a single
	// INSERT expectation per call covers the wiring.
	logger, mock := newMockLogger(t)
	userUUID := uuid.New()
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	require.NoError(t, logger.LogAuthentication(ctx, EventTypeAuthKeyVerified, &userUUID, "svc-billing", EventStatusSuccess, "verified"))

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	require.NoError(t, logger.LogAuthorization(ctx, EventTypeAuthzPermissionCheck, &userUUID, ResourceTypeDocument, "doc-9", EventStatusDenied, "no read permission"))

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	changes := &ChangeDetails{After: map[string]interface{}{"permission": "admin"}}
	require.NoError(t, logger.LogPermissionChange(ctx, EventTypeAuthzPermissionGrant, &userUUID, ResourceTypeFolder, "folder-3", changes, "granted admin"))

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	target := uuid.New()
	require.NoError(t, logger.LogAdminAction(ctx, EventTypeAdminUserDisable, &userUUID, &target, "disabled"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		userUUID := uuid.New()
		rows := sqlmock.NewRows(eventColumns()).AddRow(
			int64(1), time.Now().UTC(), "auth.key_verified", "success",
			userUUID.String(), "svc-billing", nil,
			"user", "", "",
			"203.0.113.7", "curl/8.0", "req-1",
			"POST", "/auth/verify", 200,
			"verified", "", []byte(`{"key_id":42}`), nil,
		)
		mock.ExpectQuery("SELECT (.+) FROM audit_logs WHERE 1=1 ORDER BY timestamp DESC").
			WillReturnRows(rows)

		events, err := logger.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeAuthKeyVerified, events[0].EventType)
		assert.Equal(t, float64(42), events[0].Metadata["key_id"])
	})

	t.Run("time and user filters", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		start := time.Now().Add(-time.Hour)
		end := time.Now()
		userUUID := uuid.New()

		mock.ExpectQuery(`timestamp >= \$1 AND timestamp <= \$2 AND user_uuid = \$3`).
			WithArgs(start, end, userUUID).
			WillReturnRows(sqlmock.NewRows(eventColumns()))

		events, err := logger.Search(context.Background(), SearchFilter{
			StartTime: &start,
			EndTime:   &end,
			UserUUID:  &userUUID,
		})
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("event type and pagination", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery(`event_type = ANY\(\$1\) ORDER BY timestamp DESC LIMIT \$2 OFFSET \$3`).
			WillReturnRows(sqlmock.NewRows(eventColumns()))

		_, err := logger.Search(context.Background(), SearchFilter{
			EventTypes: []EventType{EventTypeAuthzAccessDenied},
			Limit:      25,
			Offset:     50,
		})
		require.NoError(t, err)
	})

	t.Run("path filter uses LIKE", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery(`path LIKE \$1`).
			WithArgs("%/documents%").
			WillReturnRows(sqlmock.NewRows(eventColumns()))

		_, err := logger.Search(context.Background(), SearchFilter{Path: "/documents"})
		require.NoError(t, err)
	})

	t.Run("ascending sort", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery("ORDER BY timestamp ASC").
			WillReturnRows(sqlmock.NewRows(eventColumns()))

		_, err := logger.Search(context.Background(), SearchFilter{SortBy: "timestamp", SortOrder: "asc"})
		require.NoError(t, err)
	})

	t.Run("restores change details", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		rows := sqlmock.NewRows(eventColumns()).AddRow(
			int64(2), time.Now().UTC(), "authz.permission_grant", "success",
			nil, "", nil,
			"folder", "folder-3", "Reports",
			"", "", "",
			"", "", 0,
			"granted", "", nil, []byte(`{"after":{"permission":"write"}}`),
		)
		mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnRows(rows)

		events, err := logger.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].Changes)
		assert.Equal(t, "write", events[0].Changes.After["permission"])
	})

	t.Run("query failure", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnError(sql.ErrConnDone)

		_, err := logger.Search(context.Background(), SearchFilter{})
		assert.ErrorContains(t, err, "failed to search audit logs")
	})

	t.Run("corrupt metadata", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		rows := sqlmock.NewRows(eventColumns()).AddRow(
			int64(3), time.Now().UTC(), "auth.key_verified", "success",
			nil, "", nil,
			"", "", "",
			"", "", "",
			"", "", 0,
			"", "", []byte(`{not json`), nil,
		)
		mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnRows(rows)

		_, err := logger.Search(context.Background(), SearchFilter{})
		assert.ErrorContains(t, err, "failed to unmarshal metadata")
	})
}

func TestDBLogger_GetStats(t *testing.T) {
	t.Run("full window", func(t *testing.T) {
		logger, mock := newMockLogger(t)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs WHERE 1=1`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(120)))
		mock.ExpectQuery("SELECT event_type, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
				AddRow("auth.key_verified", int64(80)).
				AddRow("authz.access_denied", int64(40)))
		mock.ExpectQuery("SELECT status, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("success", int64(80)).
				AddRow("denied", int64(40)))
		mock.ExpectQuery(`COUNT\(DISTINCT user_uuid\)`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))
		mock.ExpectQuery(`COUNT\(DISTINCT ip_address\)`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
		mock.ExpectQuery(`event_type LIKE 'auth\.%' AND status = 'failure'`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
		mock.ExpectQuery(`status = 'denied'`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(40)))

		stats, err := logger.GetStats(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(120), stats.TotalEvents)
		assert.Equal(t, int64(80), stats.EventsByType[EventTypeAuthKeyVerified])
		assert.Equal(t, int64(40), stats.EventsByStatus[EventStatusDenied])
		assert.Equal(t, int64(9), stats.UniqueUsers)
		assert.Equal(t, int64(5), stats.UniqueIPs)
		assert.Equal(t, int64(3), stats.FailedAuthAttempts)
		assert.Equal(t, int64(40), stats.AccessDenials)
		assert.Nil(t, stats.TimeRange)
	})

	t.Run("bounded window sets time range", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		start := time.Now().Add(-24 * time.Hour)
		end := time.Now()

		mock.ExpectQuery(`timestamp >= \$1 AND timestamp <= \$2`).
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery("SELECT event_type, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}))
		mock.ExpectQuery("SELECT status, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}))
		mock.ExpectQuery(`COUNT\(DISTINCT user_uuid\)`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery(`COUNT\(DISTINCT ip_address\)`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery("status = 'failure'").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery("status = 'denied'").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

		stats, err := logger.GetStats(context.Background(), &start, &end)
		require.NoError(t, err)
		require.NotNil(t, stats.TimeRange)
		assert.Equal(t, start, stats.TimeRange.Start)
		assert.Equal(t, end, stats.TimeRange.End)
	})

	t.Run("count failure", func(t *testing.T) {
		logger, mock := newMockLogger(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
			WillReturnError(sql.ErrConnDone)

		_, err := logger.GetStats(context.Background(), nil, nil)
		assert.ErrorContains(t, err, "failed to get total events")
	})
}

func TestDBLogger_Close(t *testing.T) {
	// The connection is shared, so Close must leave it open.
	logger, mock := newMockLogger(t)
	assert.NoError(t, logger.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
