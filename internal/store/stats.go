package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	Models        int   `json:"models"`
	Conversations int   `json:"conversations"`
	Messages      int   `json:"messages"`
	Attachments   int   `json:"attachments"`
	AppState      int   `json:"app_state"`
	FileSizeBytes int64 `json:"file_size_bytes"`
	SchemaVersion int   `json:"schema_version"`
}

// Stats returns row counts per table, the database file size, and the
// stored schema version.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		table string
		dst   *int
	}{
		{"models", &st.Models},
		{"conversations", &st.Conversations},
		{"messages", &st.Messages},
		{"message_attachments", &st.Attachments},
		{"app_state", &st.AppState},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(s.path); err == nil {
		st.FileSizeBytes = info.Size()
	}

	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = v

	return st, nil
}
