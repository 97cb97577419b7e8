package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Enqueue(ctx context.Context, service string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_items (service, payload, attempts, status, created_at)
		VALUES ($1, $2, 0, 'pending', now())
	`, service, payload)
	if err != nil {
		return fmt.Errorf("enqueue outbox item: %w", err)
	}
	return nil
}

func (s *PgStore) DequeueNext(ctx context.Context, maxAttempts int) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, service, payload, attempts, status, created_at
		FROM outbox_items
		WHERE status = 'pending' OR (status = 'failed' AND attempts < $1)
		ORDER BY created_at ASC
		LIMIT 1
	`, maxAttempts)

	var item Item
	err := row.Scan(&item.ID, &item.Service, &item.Payload, &item.Attempts, &item.Status, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *PgStore) MarkSent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM outbox_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sent outbox item: %w", err)
	}
	return nil
}

func (s *PgStore) MarkFailed(ctx context.Context, id int64, maxAttempts int) (bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE outbox_items
		SET status = 'failed', attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("mark outbox item failed: %w", err)
	}

	if attempts >= maxAttempts {
		if _, err := s.pool.Exec(ctx, `DELETE FROM outbox_items WHERE id = $1`, id); err != nil {
			return false, fmt.Errorf("drop exhausted outbox item: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *PgStore) Reset(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_items
		SET status = 'pending', attempts = 0
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset outbox item: %w", err)
	}
	return nil
}
