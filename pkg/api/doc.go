// Package api exposes the HTTP surface of the authorization service.
//
// # Overview
//
// Three handler groups cover the domain:
//
//   - KeyHandlers: API key lifecycle (/apikeys) and credential
//     verification (/auth/verify)
//   - AdminHandlers: users, group membership and application permissions
//     (/admin/users), all gated on MANAGE_USERS
//   - DocPermHandlers: document permission maps and change requests
//     (/documents/{uuid}/permissions)
//
// NewServer assembles the groups behind the shared middleware chain:
// request IDs, panic recovery, request logging, API key authentication,
// rate limiting and audit capture. Authorization decisions themselves live
// in pkg/authz and the services; handlers only translate between HTTP and
// the domain and map the error taxonomy onto status codes.
//
// # Related Packages
//
//   - pkg/apikey: credential minting and verification
//   - pkg/docperm: document permission mutation semantics
//   - pkg/middleware: authentication and permission-gate middleware
//   - pkg/audit: audit event capture and query routes
package api
