// Package rbac stores users, roles and the area permission matrix.
//
// Each role owns one row per area (user_area_details) with Create, Edit and
// Delete flags. Users reference exactly one role and are created and
// deactivated by directory synchronization, never deleted.
//
//	store := rbac.NewStore(db)
//	perm, err := store.GetAreaPermission(ctx, objectID, "Maintenance")
//	switch {
//	case errors.Is(err, auth.ErrNoPermissionEntry):
//		// the role has no row for the area
//	case errors.Is(err, auth.ErrUserNotFound):
//		// unknown or inactive object-id
//	}
//
// CachingChecker memoizes lookups for the authorization handler; the role
// administration endpoints invalidate it on every change.
package rbac
