package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbranch/accountlink/internal/auth/storage"
	"github.com/tbranch/accountlink/internal/auth/user"
)

// PutProviderState stores an OAuth state nonce for a pending redirect flow.
func (s *Store) PutProviderState(ctx context.Context, state storage.ProviderState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("state is required")
	}
	if state.Provider == "" {
		return fmt.Errorf("provider is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO provider_states (state, provider, session_id, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
`,
		state.State,
		string(state.Provider),
		state.SessionID,
		toMillis(state.CreatedAt),
		toMillis(state.ExpiresAt),
	); err != nil {
		return storeErr("put provider state", err)
	}
	return nil
}

// ConsumeProviderState fetches and deletes a state in one transaction so a
// nonce is usable exactly once.
func (s *Store) ConsumeProviderState(ctx context.Context, state string) (storage.ProviderState, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProviderState{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.ProviderState{}, err
	}
	if strings.TrimSpace(state) == "" {
		return storage.ProviderState{}, fmt.Errorf("state is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ProviderState{}, storeErr("start transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var record storage.ProviderState
	var provider string
	var createdAt int64
	var expiresAt int64
	row := tx.QueryRowContext(ctx, `
SELECT state, provider, session_id, created_at, expires_at
FROM provider_states WHERE state = ?
`, state)
	if err := row.Scan(&record.State, &provider, &record.SessionID, &createdAt, &expiresAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return storage.ProviderState{}, storage.ErrNotFound
		}
		return storage.ProviderState{}, storeErr("get provider state", err)
	}
	record.Provider = user.Provider(provider)
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)

	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_states WHERE state = ?`, state); err != nil {
		return storage.ProviderState{}, storeErr("delete provider state", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.ProviderState{}, storeErr("commit provider state", err)
	}
	return record, nil
}

// DeleteExpiredProviderStates removes states that expired before now.
func (s *Store) DeleteExpiredProviderStates(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ensureDB(); err != nil {
		return 0, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM provider_states WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, storeErr("delete expired provider states", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("deleted provider states rows affected", err)
	}
	return deleted, nil
}
