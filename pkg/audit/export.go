package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// exportJSON exports audit events as JSON array
func exportJSON(events []*AuditEvent) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

// exportNDJSON exports audit events as newline-delimited JSON
func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// csvColumns pairs each export column with its extractor; header and rows
// are derived from the same table
var csvColumns = []struct {
	name  string
	value func(e *AuditEvent) string
}{
	{"ID", func(e *AuditEvent) string { return strconv.FormatInt(e.ID, 10) }},
	{"Timestamp", func(e *AuditEvent) string { return e.Timestamp.Format("2006-01-02 15:04:05") }},
	{"EventType", func(e *AuditEvent) string { return string(e.EventType) }},
	{"Status", func(e *AuditEvent) string { return string(e.Status) }},
	{"UserUUID", func(e *AuditEvent) string { return formatUUIDPtr(e.UserUUID) }},
	{"SubjectID", func(e *AuditEvent) string { return e.SubjectID }},
	{"APIKeyID", func(e *AuditEvent) string { return formatInt64Ptr(e.APIKeyID) }},
	{"ResourceType", func(e *AuditEvent) string { return string(e.ResourceType) }},
	{"ResourceID", func(e *AuditEvent) string { return e.ResourceID }},
	{"ResourceName", func(e *AuditEvent) string { return e.ResourceName }},
	{"IPAddress", func(e *AuditEvent) string { return e.IPAddress }},
	{"UserAgent", func(e *AuditEvent) string { return e.UserAgent }},
	{"RequestID", func(e *AuditEvent) string { return e.RequestID }},
	{"Method", func(e *AuditEvent) string { return e.Method }},
	{"Path", func(e *AuditEvent) string { return e.Path }},
	{"StatusCode", func(e *AuditEvent) string { return strconv.Itoa(e.StatusCode) }},
	{"Message", func(e *AuditEvent) string { return e.Message }},
	{"ErrorMessage", func(e *AuditEvent) string { return e.ErrorMessage }},
}

// exportCSV exports audit events as CSV
func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	row := make([]string, len(csvColumns))
	for i, col := range csvColumns {
		row[i] = col.name
	}
	if err := writer.Write(row); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		for i, col := range csvColumns {
			row[i] = col.value(event)
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}

func formatUUIDPtr(val *uuid.UUID) string {
	if val == nil {
		return ""
	}
	return val.String()
}
