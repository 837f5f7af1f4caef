package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
	"github.com/tbranch/accountlink/internal/platform/errors"
)

const selectUserColumns = `
SELECT id, email, email_verified, name, password_hash, roles, created_at, updated_at
FROM users
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(scan rowScanner) (*user.User, error) {
	var u user.User
	var emailVerified int64
	var roles string
	var createdAt int64
	var updatedAt int64
	if err := scan.Scan(
		&u.ID,
		&u.Email,
		&emailVerified,
		&u.Name,
		&u.PasswordHash,
		&roles,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	u.EmailVerified = emailVerified != 0
	u.Roles = decodeRoles(roles)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func encodeRoles(roles []user.Role) string {
	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = string(role)
	}
	return strings.Join(parts, ",")
}

func decodeRoles(value string) []user.Role {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	roles := make([]user.Role, len(parts))
	for i, part := range parts {
		roles[i] = user.Role(part)
	}
	return roles
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

// mapConstraintError translates SQLite uniqueness failures into the domain
// conflict codes callers branch on.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "users.email") || strings.Contains(msg, "idx_users_email"):
			return errors.Wrap(errors.CodeEmailTaken, "email already belongs to another user", err)
		case strings.Contains(msg, "provider_identities"):
			return errors.Wrap(errors.CodeIdentityTaken, "provider identity already linked to another user", err)
		}
	}
	return err
}

// GetUser fetches a user and its linked identities by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectUserColumns+"WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storeErr("get user", err)
	}
	if err := s.loadIdentities(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByProviderIdentity fetches the user linked to an external account.
func (s *Store) FindByProviderIdentity(ctx context.Context, key user.IdentityKey) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if key.Provider == "" || key.SubjectID == "" {
		return nil, fmt.Errorf("provider and subject id are required")
	}

	var userID string
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id FROM provider_identities WHERE provider = ? AND subject_id = ?
`, string(key.Provider), key.SubjectID)
	if err := row.Scan(&userID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storeErr("find user by provider identity", err)
	}
	return s.GetUser(ctx, userID)
}

// FindByEmail fetches the user holding the given email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(email) == "" {
		return nil, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, selectUserColumns+"WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, storeErr("find user by email", err)
	}
	if err := s.loadIdentities(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) loadIdentities(ctx context.Context, u *user.User) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT provider, subject_id, profile_json, access_token, refresh_token, created_at, updated_at
FROM provider_identities
WHERE user_id = ?
ORDER BY position ASC
`, u.ID)
	if err != nil {
		return storeErr("list provider identities", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity user.ProviderIdentity
		var provider string
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(
			&provider,
			&identity.SubjectID,
			&identity.ProfileJSON,
			&identity.AccessToken,
			&identity.RefreshToken,
			&createdAt,
			&updatedAt,
		); err != nil {
			return storeErr("scan provider identity", err)
		}
		identity.Provider = user.Provider(provider)
		identity.CreatedAt = fromMillis(createdAt)
		identity.UpdatedAt = fromMillis(updatedAt)
		u.Providers = append(u.Providers, identity)
	}
	if err := rows.Err(); err != nil {
		return storeErr("iterate provider identities", err)
	}
	return nil
}

// Create inserts a new user and its identities atomically.
func (s *Store) Create(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user is required")
	}
	if err := u.Validate(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("start transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, email, email_verified, name, password_hash, roles, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		u.ID,
		u.Email,
		boolToInt(u.EmailVerified),
		u.Name,
		u.PasswordHash,
		encodeRoles(u.Roles),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	); err != nil {
		if mapped := mapConstraintError(err); mapped != err {
			return mapped
		}
		return storeErr("insert user", err)
	}

	if err := insertIdentities(ctx, tx, u); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit user", err)
	}
	return nil
}

// Save replaces the stored user row and its identities atomically.
func (s *Store) Save(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user is required")
	}
	if err := u.Validate(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("start transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE users
SET email = ?, email_verified = ?, name = ?, password_hash = ?, roles = ?, updated_at = ?
WHERE id = ?
`,
		u.Email,
		boolToInt(u.EmailVerified),
		u.Name,
		u.PasswordHash,
		encodeRoles(u.Roles),
		toMillis(u.UpdatedAt),
		u.ID,
	)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != err {
			return mapped
		}
		return storeErr("update user", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("update user rows affected", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_identities WHERE user_id = ?`, u.ID); err != nil {
		return storeErr("clear provider identities", err)
	}
	if err := insertIdentities(ctx, tx, u); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit user", err)
	}
	return nil
}

func insertIdentities(ctx context.Context, tx *sql.Tx, u *user.User) error {
	for position, identity := range u.Providers {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO provider_identities (provider, subject_id, user_id, position, profile_json, access_token, refresh_token, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			string(identity.Provider),
			identity.SubjectID,
			u.ID,
			position,
			identity.ProfileJSON,
			identity.AccessToken,
			identity.RefreshToken,
			toMillis(identity.CreatedAt),
			toMillis(identity.UpdatedAt),
		); err != nil {
			if mapped := mapConstraintError(err); mapped != err {
				return mapped
			}
			return storeErr("insert provider identity", err)
		}
	}
	return nil
}
