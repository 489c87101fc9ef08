// Package auth holds the identity types shared by the plantops API: principals and
// their claims, internal users, roles and the role x area permission matrix.
//
// # Overview
//
// Callers authenticate with a bearer token issued by an OpenID Connect provider
// (Azure AD in production). The token is validated by OIDCVerifier, which
// maps the provider's short claim names onto the claim types the rest of the
// service understands:
//
//	oid   -> ObjectIDClaim
//	name  -> NameClaim (also Principal.Name)
//	email -> EmailClaim (falls back to preferred_username / upn)
//
// Claims resolution (pkg/claims) then adds a LevelClaim carrying the caller's
// role name, and authorization (pkg/authz) consults the AreaPermission rows of
// that role.
//
// # Errors
//
// The sentinel errors in this package are the error kinds surfaced by the
// pipeline; wrap them with %w and test them with errors.Is:
//
//	ErrMissingObjectID   - principal without an object-id claim (401)
//	ErrUserNotFound      - object-id unknown even after a directory resync (401)
//	ErrForbidden         - permission matrix denied the request (403)
//	ErrNoPermissionEntry - role has no row for the resolved area (403)
package auth
