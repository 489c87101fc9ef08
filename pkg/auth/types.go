package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/plantops/pkg/contextkeys"
)

// Claim types understood by the API
const (
	// ObjectIDClaim carries the identity provider's stable user identifier
	ObjectIDClaim = "http://schemas.microsoft.com/identity/claims/objectidentifier"
	// NameClaim carries the display/user name of the caller
	NameClaim = "name"
	// EmailClaim carries the caller's email address when the provider supplies one
	EmailClaim = "email"
	// LevelClaim is issued by claims resolution and carries the role name
	LevelClaim = "Level"
)

var (
	// ErrUserNotFound is returned when an object-id has no user record
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingObjectID is returned when a principal has no object-id claim
	ErrMissingObjectID = errors.New("object id claim missing")
	// ErrForbidden is returned when the permission matrix denies a request
	ErrForbidden = errors.New("forbidden")
	// ErrNoPermissionEntry is returned when a role has no row for an area
	ErrNoPermissionEntry = errors.New("no permission entry for area")
	// ErrRoleNotFound is returned when a role does not exist
	ErrRoleNotFound = errors.New("role not found")
)

// Claim is a single type/value pair attached to a principal
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is an authenticated caller and its claims
type Principal struct {
	Name   string  `json:"name"`
	Claims []Claim `json:"claims"`
}

// FindFirst returns the value of the first claim of the given type
func (p *Principal) FindFirst(claimType string) string {
	if p == nil {
		return ""
	}
	for _, c := range p.Claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// HasClaim reports whether the principal carries a claim of the given type
func (p *Principal) HasClaim(claimType string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Claims {
		if c.Type == claimType {
			return true
		}
	}
	return false
}

// ObjectID returns the object-id claim value
func (p *Principal) ObjectID() string {
	return p.FindFirst(ObjectIDClaim)
}

// Level returns the role name issued by claims resolution
func (p *Principal) Level() string {
	return p.FindFirst(LevelClaim)
}

// WithClaim returns a copy of the principal with one more claim.
// The receiver is left untouched.
func (p *Principal) WithClaim(claimType, value string) *Principal {
	out := &Principal{Name: p.Name, Claims: make([]Claim, 0, len(p.Claims)+1)}
	out.Claims = append(out.Claims, p.Claims...)
	out.Claims = append(out.Claims, Claim{Type: claimType, Value: value})
	return out
}

// User is the internal record for a directory member
type User struct {
	ID                     int64     `json:"id"`
	ObjectID               string    `json:"object_id"`
	Email                  string    `json:"email"`
	DisplayName            string    `json:"display_name"`
	RoleID                 int64     `json:"role_id"`
	RoleName               string    `json:"role_name"`
	ShowReleaseDialogue    bool      `json:"show_release_dialogue"`
	ShowFirstLoginDialogue bool      `json:"show_first_login_dialogue"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Role groups area permissions
type Role struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Areas       []AreaPermission `json:"areas"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Area returns the role's permission row for an area, if any
func (r *Role) Area(name string) (AreaPermission, bool) {
	for _, a := range r.Areas {
		if a.Area == name {
			return a, true
		}
	}
	return AreaPermission{}, false
}

// Permission is a mutating capability within an area
type Permission string

const (
	PermissionCreate Permission = "create"
	PermissionEdit   Permission = "edit"
	PermissionDelete Permission = "delete"
)

// AreaPermission is one cell of the permission matrix (role x area)
type AreaPermission struct {
	Area   string `json:"area"`
	Create bool   `json:"create"`
	Edit   bool   `json:"edit"`
	Delete bool   `json:"delete"`
}

// Allows reports whether the row grants the permission
func (a AreaPermission) Allows(p Permission) bool {
	switch p {
	case PermissionCreate:
		return a.Create
	case PermissionEdit:
		return a.Edit
	case PermissionDelete:
		return a.Delete
	default:
		return false
	}
}

// Identity is what claims resolution learned about the caller.
// It is cached per object-id and attached to the request context.
type Identity struct {
	UserID      int64  `json:"user_id"`
	ObjectID    string `json:"object_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Environment string `json:"environment"`
}

// PrincipalFromContext returns the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p
}

// IdentityFromContext returns the resolved identity, or nil
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return id
}

// DirectoryMember is a user as reported by the identity directory
type DirectoryMember struct {
	ObjectID    string `json:"object_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// SyncResult summarizes one directory synchronization
type SyncResult struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
	Active      int `json:"active"`
	// DeactivatedObjectIDs lists the users this sync switched off
	DeactivatedObjectIDs []string `json:"-"`
}
