package store

import (
	"context"
	"database/sql"
	"time"
)

// CleanupStats reports how many rows an age-based cleanup removed.
type CleanupStats struct {
	Models        int `json:"models"`
	Conversations int `json:"conversations"`
}

// CleanupOldData deletes conversations not updated within the last
// `days` days, and models neither accessed within that window nor
// referenced by any remaining conversation. The two criteria are
// independent: a model survives on either recency or a reference.
func (s *Store) CleanupOldData(ctx context.Context, days int) (*CleanupStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeFormat)
	stats := &CleanupStats{}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM conversations WHERE updated_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		stats.Conversations = int(n)

		res, err = tx.Exec(`
			DELETE FROM models
			WHERE last_accessed < ?
			AND name NOT IN (
				SELECT DISTINCT model_name FROM conversations
				WHERE model_name IS NOT NULL AND model_name != ''
			)`, cutoff)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		stats.Models = int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("models", stats.Models).
		Int("conversations", stats.Conversations).
		Int("days", days).
		Msg("old data cleaned up")
	return stats, nil
}

// PurgeCache wipes all model, conversation, message, and attachment rows
// in one transaction, returning the store to its just-migrated state.
// App state is untouched; the cache layer clears its own keys.
func (s *Store) PurgeCache(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"message_attachments", "messages", "conversations", "models"} {
			if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
				return err
			}
		}
		return nil
	})
}
