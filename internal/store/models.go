package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/llamalot/llamalot/internal/model"
)

// timeFormat is how every timestamp is stored. RFC 3339 in UTC compares
// lexically in the same order as chronologically, which the cleanup
// queries rely on.
const timeFormat = time.RFC3339

// SaveModel inserts or updates a model by name, replacing every
// non-identity field and touching updated_at and last_accessed.
func (s *Store) SaveModel(ctx context.Context, m *model.Model) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("save model: empty name")
	}

	now := time.Now().UTC().Format(timeFormat)

	var families, capabilities, infoJSON, architecture sql.NullString
	if len(m.Details.Families) > 0 {
		b, _ := json.Marshal(m.Details.Families)
		families = sql.NullString{String: string(b), Valid: true}
	}
	if len(m.Capabilities) > 0 {
		b, _ := json.Marshal(m.Capabilities)
		capabilities = sql.NullString{String: string(b), Valid: true}
	}
	if m.Info != nil {
		b, err := json.Marshal(m.Info)
		if err != nil {
			return fmt.Errorf("save model: encode info: %w", err)
		}
		infoJSON = sql.NullString{String: string(b), Valid: true}
		if m.Info.Architecture != "" {
			architecture = sql.NullString{String: m.Info.Architecture, Valid: true}
		}
	}

	var modifiedAt sql.NullString
	if !m.ModifiedAt.IsZero() {
		modifiedAt = sql.NullString{String: m.ModifiedAt.UTC().Format(timeFormat), Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO models (
				name, size, digest, modified_at,
				format, family, families, parameter_size, quantization_level,
				modelfile, parameters, capabilities,
				last_accessed, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				size = excluded.size,
				digest = excluded.digest,
				modified_at = excluded.modified_at,
				format = excluded.format,
				family = excluded.family,
				families = excluded.families,
				parameter_size = excluded.parameter_size,
				quantization_level = excluded.quantization_level,
				modelfile = excluded.modelfile,
				parameters = excluded.parameters,
				capabilities = excluded.capabilities,
				last_accessed = excluded.last_accessed,
				updated_at = excluded.updated_at`,
			m.Name, m.Size, m.Digest, modifiedAt,
			m.Details.Format, m.Details.Family, families,
			m.Details.ParameterSize, m.Details.QuantizationLevel,
			architecture, infoJSON, capabilities,
			now, now, now)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Debug().Str("model", m.Name).Msg("model saved")
	return nil
}

// GetModel returns the model with the given name, or nil if it is not
// cached. A hit bumps last_accessed.
func (s *Store) GetModel(ctx context.Context, name string) (*model.Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, size, digest, modified_at,
		       format, family, families, parameter_size, quantization_level,
		       modelfile, parameters, capabilities,
		       last_accessed, created_at, updated_at
		FROM models WHERE name = ?`, name)

	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(timeFormat)
	s.db.ExecContext(ctx, `UPDATE models SET last_accessed = ? WHERE name = ?`, now, name)

	return m, nil
}

// ListModels returns cached models ordered by name, optionally filtered
// by family. Rows with empty names are excluded.
func (s *Store) ListModels(ctx context.Context, family string) ([]model.Model, error) {
	query := `
		SELECT name, size, digest, modified_at,
		       format, family, families, parameter_size, quantization_level,
		       modelfile, parameters, capabilities,
		       last_accessed, created_at, updated_at
		FROM models WHERE name != '' AND name IS NOT NULL`
	args := []any{}
	if family != "" {
		query += ` AND family = ?`
		args = append(args, family)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []model.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *m)
	}
	return models, rows.Err()
}

// DeleteModel removes a model. Returns true if a row existed.
func (s *Store) DeleteModel(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM models WHERE name = ?`, name)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// cleanupInvalidModels removes rows whose identity is unusable.
func (s *Store) cleanupInvalidModels(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE name = '' OR name IS NULL`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanModel(row scanner) (*model.Model, error) {
	var m model.Model
	var modifiedAt, families, architecture, infoJSON, capabilities sql.NullString
	var lastAccessed, createdAt, updatedAt sql.NullString
	var size sql.NullInt64
	var digest sql.NullString
	// Rows written by older clients leave detail columns NULL.
	var format, family, parameterSize, quantizationLevel sql.NullString

	err := row.Scan(
		&m.Name, &size, &digest, &modifiedAt,
		&format, &family, &families,
		&parameterSize, &quantizationLevel,
		&architecture, &infoJSON, &capabilities,
		&lastAccessed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Size = size.Int64
	m.Digest = digest.String
	m.Details.Format = format.String
	m.Details.Family = family.String
	m.Details.ParameterSize = parameterSize.String
	m.Details.QuantizationLevel = quantizationLevel.String
	m.ModifiedAt = parseTime(modifiedAt)
	m.LastAccessed = parseTime(lastAccessed)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.Details.Families = parseStringList(families.String)
	m.Capabilities = parseStringList(capabilities.String)

	if infoJSON.Valid {
		var info model.Info
		if err := json.Unmarshal([]byte(infoJSON.String), &info); err == nil {
			m.Info = &info
		} else if architecture.Valid {
			// Malformed stored metadata degrades to the mirrored field.
			m.Info = &model.Info{Architecture: architecture.String}
		}
	}

	return &m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseStringList reads a stored list column. JSON is the current
// format; older stores wrote Python literal syntax ("['a', 'b']"),
// which is parsed explicitly rather than evaluated. Anything else
// degrades to an empty list.
func parseStringList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	var out []string
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		if len(out) == 0 {
			return nil
		}
		return out
	}

	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		inner := strings.TrimSpace(v[1 : len(v)-1])
		if inner == "" {
			return nil
		}
		for _, part := range strings.Split(inner, ",") {
			part = strings.TrimSpace(part)
			part = strings.Trim(part, `'"`)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	return nil
}
