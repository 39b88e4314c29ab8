// Package audit provides audit logging for security, compliance, and forensics.
//
// # Overview
//
// This package records key verifications, permission checks and mutations,
// admin actions, and document access with actor identity and request context.
// Events can be written to PostgreSQL, JSON-lines files, or both at once.
//
// # Event Types
//
// Authentication: auth.key_verified, auth.key_verify_failed
// Authorization: authz.permission_check, authz.access_denied, authz.elevation
// Permission changes: authz.permission_grant, authz.permission_revoke, authz.permission_clear
// API keys: apikey.create, apikey.update, apikey.delete, apikey.expire_sweep
// Admin: admin.user_create, admin.user_enable, admin.user_disable, admin.group_change
// Access: access.document_read, access.audit_read
//
// # Usage Example
//
// Log a key verification:
//
//	logger.LogAuthentication(ctx, audit.EventTypeAuthKeyVerified,
//		&user.UUID, user.SubjectID, audit.EventStatusSuccess, "api key verified")
//
// Log a permission grant with before/after values:
//
//	logger.LogPermissionChange(ctx, audit.EventTypeAuthzPermissionGrant,
//		&actor.UUID, audit.ResourceTypeDocument, docUUID.String(),
//		&audit.ChangeDetails{Before: oldPerms, After: newPerms},
//		"granted Update on document")
//
// Search audit logs:
//
//	events, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &dayAgo,
//		UserUUID:   &userUUID,
//		EventTypes: []audit.EventType{audit.EventTypeAuthzAccessDenied},
//	})
//
// # Retention Policy
//
// Default: 90 days active retention
// Export: JSON, CSV, NDJSON formats for external analysis
//
// # Related Packages
//
//   - pkg/apikey: Key verification events
//   - pkg/authz: Permission check and mutation events
//   - pkg/middleware: HTTP request logging
package audit
