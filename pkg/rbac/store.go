package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/plantops/pkg/auth"
)

// pq error code for foreign_key_violation
const fkViolation = "23503"

// Store handles users, roles and the permission matrix in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `
	u.id, u.object_id, u.email, u.display_name, u.role_id, r.name,
	u.show_release_dialogue, u.show_first_login_dialogue, u.is_active,
	u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID,
		&u.ObjectID,
		&u.Email,
		&u.DisplayName,
		&u.RoleID,
		&u.RoleName,
		&u.ShowReleaseDialogue,
		&u.ShowFirstLoginDialogue,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByObjectID returns the active user with the given directory object-id
func (s *Store) GetUserByObjectID(ctx context.Context, objectID string) (*auth.User, error) {
	query := `SELECT` + userColumns + `
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.object_id = $1 AND u.is_active = TRUE`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, objectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: object id %s", auth.ErrUserNotFound, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetAreaPermission returns the caller's role row for an area.
// It fails with auth.ErrUserNotFound when the object-id has no active user and
// with auth.ErrNoPermissionEntry when the role has no row for the area.
func (s *Store) GetAreaPermission(ctx context.Context, objectID, area string) (auth.AreaPermission, error) {
	query := `
		SELECT d.area, d.can_create, d.can_edit, d.can_delete
		FROM users u
		LEFT JOIN user_area_details d ON d.role_id = u.role_id AND d.area = $2
		WHERE u.object_id = $1 AND u.is_active = TRUE`

	var (
		rowArea               sql.NullString
		create, edit, deleteP sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, query, objectID, area).Scan(&rowArea, &create, &edit, &deleteP)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AreaPermission{}, fmt.Errorf("%w: object id %s", auth.ErrUserNotFound, objectID)
	}
	if err != nil {
		return auth.AreaPermission{}, fmt.Errorf("failed to get area permission: %w", err)
	}
	if !rowArea.Valid {
		return auth.AreaPermission{}, fmt.Errorf("%w: %s", auth.ErrNoPermissionEntry, area)
	}

	return auth.AreaPermission{
		Area:   rowArea.String,
		Create: create.Bool,
		Edit:   edit.Bool,
		Delete: deleteP.Bool,
	}, nil
}

// ListRoles returns every role with its area rows
func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []auth.Role
	index := make(map[int64]int)
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Areas = []auth.AreaPermission{}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	areaRows, err := s.db.QueryContext(ctx, `
		SELECT role_id, area, can_create, can_edit, can_delete
		FROM user_area_details
		ORDER BY role_id, area`)
	if err != nil {
		return nil, fmt.Errorf("failed to list area permissions: %w", err)
	}
	defer areaRows.Close()

	for areaRows.Next() {
		var (
			roleID int64
			p      auth.AreaPermission
		)
		if err := areaRows.Scan(&roleID, &p.Area, &p.Create, &p.Edit, &p.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan area permission: %w", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].Areas = append(roles[i].Areas, p)
		}
	}
	if err := areaRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list area permissions: %w", err)
	}

	return roles, nil
}

// GetRole returns one role with its area rows
func (s *Store) GetRole(ctx context.Context, roleID int64) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		WHERE id = $1`, roleID).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", auth.ErrRoleNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT area, can_create, can_edit, can_delete
		FROM user_area_details
		WHERE role_id = $1
		ORDER BY area`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role areas: %w", err)
	}
	defer rows.Close()

	role.Areas = []auth.AreaPermission{}
	for rows.Next() {
		var p auth.AreaPermission
		if err := rows.Scan(&p.Area, &p.Create, &p.Edit, &p.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan area permission: %w", err)
		}
		role.Areas = append(role.Areas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get role areas: %w", err)
	}

	return &role, nil
}

// SetAreaPermission inserts or replaces one cell of the permission matrix
func (s *Store) SetAreaPermission(ctx context.Context, roleID int64, p auth.AreaPermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_area_details (role_id, area, can_create, can_edit, can_delete, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (role_id, area) DO UPDATE SET
			can_create = EXCLUDED.can_create,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			updated_at = NOW()`,
		roleID, p.Area, p.Create, p.Edit, p.Delete,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == fkViolation {
			return fmt.Errorf("%w: %d", auth.ErrRoleNotFound, roleID)
		}
		return fmt.Errorf("failed to set area permission: %w", err)
	}
	return nil
}

// UpdateDialogueFlags changes the dialogue flags that are non-nil
func (s *Store) UpdateDialogueFlags(ctx context.Context, userID int64, release, firstLogin *bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			show_release_dialogue = COALESCE($2, show_release_dialogue),
			show_first_login_dialogue = COALESCE($3, show_first_login_dialogue),
			updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE`,
		userID, nullBool(release), nullBool(firstLogin),
	)
	if err != nil {
		return fmt.Errorf("failed to update dialogue flags: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update dialogue flags: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", auth.ErrUserNotFound, userID)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// UpsertDirectoryUsers reconciles users with the directory membership in one transaction.
// New members get defaultRole, known members are refreshed and reactivated, and
// active users absent from members are deactivated.
func (s *Store) UpsertDirectoryUsers(ctx context.Context, members []auth.DirectoryMember, defaultRole string) (auth.SyncResult, error) {
	var result auth.SyncResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var roleID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, defaultRole).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("%w: default role %s", auth.ErrRoleNotFound, defaultRole)
	}
	if err != nil {
		return result, fmt.Errorf("failed to resolve default role: %w", err)
	}

	objectIDs := make([]string, 0, len(members))
	for _, m := range members {
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (object_id, email, display_name, role_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (object_id) DO UPDATE SET
				email = EXCLUDED.email,
				display_name = EXCLUDED.display_name,
				is_active = TRUE,
				updated_at = NOW()
			RETURNING (xmax = 0)`,
			m.ObjectID, m.Email, m.DisplayName, roleID,
		).Scan(&inserted)
		if err != nil {
			return result, fmt.Errorf("failed to upsert user %s: %w", m.ObjectID, err)
		}
		if inserted {
			result.Created++
		} else {
			result.Updated++
		}
		objectIDs = append(objectIDs, m.ObjectID)
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = NOW()
		WHERE is_active = TRUE AND NOT (object_id = ANY($1))
		RETURNING object_id`,
		pq.Array(objectIDs),
	)
	if err != nil {
		return result, fmt.Errorf("failed to deactivate users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var objectID string
		if err := rows.Scan(&objectID); err != nil {
			return result, fmt.Errorf("failed to scan deactivated user: %w", err)
		}
		result.DeactivatedObjectIDs = append(result.DeactivatedObjectIDs, objectID)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to deactivate users: %w", err)
	}
	result.Deactivated = len(result.DeactivatedObjectIDs)
	result.Active = len(objectIDs)

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit directory sync: %w", err)
	}
	return result, nil
}
