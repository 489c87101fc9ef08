//go:build integration

package rbac

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
	"github.com/platinummonkey/plantops/pkg/storage"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	if _, err := testcontainers.ProviderDocker.GetProvider(); err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("plantops_test"),
		postgres.WithUsername("plantops"),
		postgres.WithPassword("plantops_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := storage.Open(ctx, storage.Config{URL: connStr})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
	require.NoError(t, storage.Migrate(ctx, db, logger, Migrations()))
	// applying twice is a no-op
	require.NoError(t, storage.Migrate(ctx, db, logger, Migrations()))

	return db
}

func TestStore_DirectoryLifecycle(t *testing.T) {
	db := setupPostgres(t)
	store := NewStore(db)
	ctx := context.Background()

	result, err := store.UpsertDirectoryUsers(ctx, []auth.DirectoryMember{
		{ObjectID: "oid-admin", Email: "admin@plant.example", DisplayName: "Admin"},
		{ObjectID: "oid-op", Email: "op@plant.example", DisplayName: "Operator"},
	}, "Viewer")
	require.NoError(t, err)
	assert.Equal(t, auth.SyncResult{Created: 2, Active: 2}, result)

	user, err := store.GetUserByObjectID(ctx, "oid-op")
	require.NoError(t, err)
	assert.Equal(t, "Viewer", user.RoleName)
	assert.True(t, user.ShowFirstLoginDialogue)

	// Viewer has no rows at all
	_, err = store.GetAreaPermission(ctx, "oid-op", "Job")
	assert.ErrorIs(t, err, auth.ErrNoPermissionEntry)

	require.NoError(t, store.SetAreaPermission(ctx, user.RoleID, auth.AreaPermission{Area: "Job", Edit: true}))
	perm, err := store.GetAreaPermission(ctx, "oid-op", "Job")
	require.NoError(t, err)
	assert.Equal(t, auth.AreaPermission{Area: "Job", Edit: true}, perm)

	off := false
	require.NoError(t, store.UpdateDialogueFlags(ctx, user.ID, nil, &off))
	user, err = store.GetUserByObjectID(ctx, "oid-op")
	require.NoError(t, err)
	assert.False(t, user.ShowFirstLoginDialogue)
	assert.True(t, user.ShowReleaseDialogue)

	// second sync drops the operator
	result, err = store.UpsertDirectoryUsers(ctx, []auth.DirectoryMember{
		{ObjectID: "oid-admin", Email: "admin@plant.example", DisplayName: "Admin Renamed"},
	}, "Viewer")
	require.NoError(t, err)
	assert.Equal(t, auth.SyncResult{Updated: 1, Deactivated: 1, Active: 1, DeactivatedObjectIDs: []string{"oid-op"}}, result)

	_, err = store.GetUserByObjectID(ctx, "oid-op")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	admin := roles[0]
	assert.Equal(t, "Administrator", admin.Name)
	row, ok := admin.Area("Maintenance")
	require.True(t, ok)
	assert.True(t, row.Delete)

	err = store.SetAreaPermission(ctx, 12345, auth.AreaPermission{Area: "Job"})
	assert.ErrorIs(t, err, auth.ErrRoleNotFound)
}
