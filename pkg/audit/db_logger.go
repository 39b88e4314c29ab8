package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL database
type DBLogger struct {
	eventLogger
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db: db,
	}
	logger.eventLogger = eventLogger{sink: logger}

	// Ensure the audit_logs table exists
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_uuid UUID,
		subject_id VARCHAR(255),
		api_key_id BIGINT,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		resource_name VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_uuid ON audit_logs(user_uuid);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_status ON audit_logs(status);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_ip_address ON audit_logs(ip_address);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	// Serialize metadata and changes to JSON
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_uuid, subject_id, api_key_id,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserUUID, event.SubjectID, event.APIKeyID,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// queryBuilder accumulates positional WHERE conditions
type queryBuilder struct {
	sb   strings.Builder
	args []interface{}
}

func (qb *queryBuilder) where(clause string, arg interface{}) {
	qb.sb.WriteString(fmt.Sprintf(" AND "+clause, len(qb.args)+1))
	qb.args = append(qb.args, arg)
}

func (qb *queryBuilder) raw(s string) {
	qb.sb.WriteString(s)
}

// Search searches audit logs based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	qb := &queryBuilder{}
	qb.raw(`
		SELECT
			id, timestamp, event_type, status,
			user_uuid, subject_id, api_key_id,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		FROM audit_logs
		WHERE 1=1
	`)

	if filter.StartTime != nil {
		qb.where("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.where("timestamp <= $%d", *filter.EndTime)
	}
	if filter.UserUUID != nil {
		qb.where("user_uuid = $%d", *filter.UserUUID)
	}
	if filter.SubjectID != "" {
		qb.where("subject_id = $%d", filter.SubjectID)
	}
	if len(filter.EventTypes) > 0 {
		names := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			names[i] = string(et)
		}
		qb.where("event_type = ANY($%d)", pq.Array(names))
	}
	if filter.Status != nil {
		qb.where("status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		qb.where("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		qb.where("resource_id = $%d", filter.ResourceID)
	}
	if filter.IPAddress != "" {
		qb.where("ip_address = $%d", filter.IPAddress)
	}
	if filter.Method != "" {
		qb.where("method = $%d", filter.Method)
	}
	if filter.Path != "" {
		qb.where("path LIKE $%d", "%"+filter.Path+"%")
	}

	switch {
	case filter.SortBy != "" && filter.SortOrder == "asc":
		qb.raw(fmt.Sprintf(" ORDER BY %s ASC", filter.SortBy))
	case filter.SortBy != "":
		qb.raw(fmt.Sprintf(" ORDER BY %s DESC", filter.SortBy))
	default:
		qb.raw(" ORDER BY timestamp DESC")
	}

	if filter.Limit > 0 {
		qb.sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(qb.args)+1))
		qb.args = append(qb.args, filter.Limit)
	}
	if filter.Offset > 0 {
		qb.sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(qb.args)+1))
		qb.args = append(qb.args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, qb.sb.String(), qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{
			Metadata: make(map[string]interface{}),
		}

		var metadataJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.UserUUID, &event.SubjectID, &event.APIKeyID,
			&event.ResourceType, &event.ResourceID, &event.ResourceName,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Method, &event.Path, &event.StatusCode,
			&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		// Unmarshal JSON fields
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		if len(changesJSON) > 0 {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// GetStats retrieves audit log statistics
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:     make(map[EventType]int64),
		EventsByStatus:   make(map[EventStatus]int64),
		EventsByResource: make(map[ResourceType]int64),
	}

	where := "WHERE 1=1"
	args := []interface{}{}

	if startTime != nil {
		args = append(args, *startTime)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
		stats.TimeRange = &TimeRange{Start: *startTime}
	}
	if endTime != nil {
		args = append(args, *endTime)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	countInto := func(dest *int64, what, suffix string) error {
		query := fmt.Sprintf("SELECT COUNT(%s) FROM audit_logs %s%s", what, where, suffix)
		return l.db.QueryRowContext(ctx, query, args...).Scan(dest)
	}

	if err := countInto(&stats.TotalEvents, "*", ""); err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	groupCounts := func(column string, record func(name string, count int64)) error {
		query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs %s GROUP BY %s", column, where, column)
		rows, err := l.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			var count int64
			if err := rows.Scan(&name, &count); err != nil {
				return err
			}
			record(name, count)
		}
		return rows.Err()
	}

	err := groupCounts("event_type", func(name string, count int64) {
		stats.EventsByType[EventType(name)] = count
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}

	err = groupCounts("status", func(name string, count int64) {
		stats.EventsByStatus[EventStatus(name)] = count
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}

	if err := countInto(&stats.UniqueUsers, "DISTINCT user_uuid", " AND user_uuid IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}
	if err := countInto(&stats.UniqueIPs, "DISTINCT ip_address", " AND ip_address IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("failed to get unique IPs: %w", err)
	}
	if err := countInto(&stats.FailedAuthAttempts, "*", " AND event_type LIKE 'auth.%' AND status = 'failure'"); err != nil {
		return nil, fmt.Errorf("failed to get failed auth attempts: %w", err)
	}
	if err := countInto(&stats.AccessDenials, "*", " AND status = 'denied'"); err != nil {
		return nil, fmt.Errorf("failed to get access denials: %w", err)
	}

	return stats, nil
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// We don't close the database connection as it may be shared
	return nil
}
