package store

import (
	"context"
	"fmt"
	"time"
)

var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, contactID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (message_id, contact_id, received_at) VALUES (?, ?, ?)`,
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
		`SELECT processed_at IS NULL FROM inbound_dedup WHERE message_id = ?`, messageID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("dedup processed check failed: %w", err)
	}
	return pending, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		time.Now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
