package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// MaxDirectoryResyncs is how many directory refreshes a lookup miss may force
// before the object-id is reported as unknown.
const MaxDirectoryResyncs = 1

// UserLookup resolves internal users by directory object-id
type UserLookup interface {
	GetUserByObjectID(ctx context.Context, objectID string) (*auth.User, error)
}

// DirectorySync refreshes the local user table from the identity directory
type DirectorySync interface {
	RefreshAuthorizedUsers(ctx context.Context) error
}

// UserNotFoundError reports an object-id that stayed unknown after resyncing
type UserNotFoundError struct {
	ObjectID string
	Resyncs  int
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user with object id %s not found after %d directory resync(s)", e.ObjectID, e.Resyncs)
}

// Is makes errors.Is(err, auth.ErrUserNotFound) match
func (e *UserNotFoundError) Is(target error) bool {
	return target == auth.ErrUserNotFound
}

// Config holds the optional collaborators of a Transformer
type Config struct {
	// Environment is recorded on every resolved identity
	Environment string
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Transformer enriches authenticated principals with the caller's role
type Transformer struct {
	users       UserLookup
	directory   DirectorySync
	cache       IdentityCache
	environment string
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewTransformer creates a claims transformer. directory may be nil, in
// which case a lookup miss fails without resyncing.
func NewTransformer(users UserLookup, directory DirectorySync, cache IdentityCache, cfg Config) *Transformer {
	if cache == nil {
		cache = NopCache{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Transformer{
		users:       users,
		directory:   directory,
		cache:       cache,
		environment: cfg.Environment,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// Transform returns a copy of principal carrying a Level claim with the role name.
// Principals without an object-id or a name are returned unchanged.
func (t *Transformer) Transform(ctx context.Context, principal *auth.Principal) (*auth.Principal, error) {
	out, _, err := t.Resolve(ctx, principal)
	return out, err
}

// Resolve is Transform that also returns the resolved identity.
// The identity is nil when the principal was passed through unchanged.
func (t *Transformer) Resolve(ctx context.Context, principal *auth.Principal) (*auth.Principal, *auth.Identity, error) {
	objectID := principal.ObjectID()
	if principal == nil || objectID == "" || principal.Name == "" {
		t.metrics.RecordClaimsResolution("skipped")
		return principal, nil, nil
	}

	if identity, ok := t.cache.Get(ctx, objectID); ok {
		t.metrics.RecordClaimsResolution("cached")
		return principal.WithClaim(auth.LevelClaim, identity.Role), identity, nil
	}

	user, err := t.lookupWithResync(ctx, objectID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			t.metrics.RecordClaimsResolution("not_found")
			t.logger.WithField("object_id", objectID).Warn("No user for object id after directory resync")
		} else {
			t.metrics.RecordClaimsResolution("error")
		}
		return nil, nil, err
	}

	email := user.Email
	if email == "" {
		email = principal.FindFirst(auth.EmailClaim)
	}
	identity := &auth.Identity{
		UserID:      user.ID,
		ObjectID:    objectID,
		Email:       email,
		Role:        user.RoleName,
		Environment: t.environment,
	}
	t.cache.Set(ctx, identity)
	t.metrics.RecordClaimsResolution("resolved")

	return principal.WithClaim(auth.LevelClaim, identity.Role), identity, nil
}

func (t *Transformer) lookupWithResync(ctx context.Context, objectID string) (*auth.User, error) {
	for resyncs := 0; ; resyncs++ {
		user, err := t.users.GetUserByObjectID(ctx, objectID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, auth.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if resyncs >= MaxDirectoryResyncs || t.directory == nil {
			return nil, &UserNotFoundError{ObjectID: objectID, Resyncs: resyncs}
		}

		t.logger.WithField("object_id", objectID).Info("Unknown object id, refreshing directory")
		if err := t.directory.RefreshAuthorizedUsers(ctx); err != nil {
			return nil, fmt.Errorf("directory resync failed: %w", err)
		}
	}
}
