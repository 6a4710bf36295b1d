package store

import (
	"context"
	"fmt"
	"time"
)

var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, contactID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, contact_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, contactID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return true, nil
	}

	var pending bool
	err = s.db.QueryRowContext(ctx,
		`SELECT processed_at IS NULL FROM inbound_dedup WHERE message_id = $1`, messageID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("dedup processed check failed: %w", err)
	}
	return pending, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
