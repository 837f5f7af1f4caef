package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tbranch/accountlink/internal/auth/storage"
)

// EnqueueOutboxEvent appends an integration event for asynchronous delivery.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO auth_outbox (topic, payload, created_at) VALUES (?, ?, ?)
`, topic, payload, toMillis(time.Now())); err != nil {
		return storeErr("enqueue outbox event", err)
	}
	return nil
}

// ListOutboxEvents returns up to limit pending events in enqueue order.
func (s *Store) ListOutboxEvents(ctx context.Context, limit int) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, topic, payload, created_at
FROM auth_outbox
ORDER BY id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, storeErr("list outbox events", err)
	}
	defer rows.Close()

	var events []storage.OutboxEvent
	for rows.Next() {
		var event storage.OutboxEvent
		var createdAt int64
		if err := rows.Scan(&event.ID, &event.Topic, &event.Payload, &createdAt); err != nil {
			return nil, storeErr("scan outbox event", err)
		}
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate outbox events", err)
	}
	return events, nil
}

// DeleteOutboxEvents removes delivered events by ID.
func (s *Store) DeleteOutboxEvents(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM auth_outbox WHERE id IN (%s)", strings.Join(placeholders, ", "))
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return storeErr("delete outbox events", err)
	}
	return nil
}
