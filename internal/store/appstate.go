package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SetAppState upserts a typed key/value pair. The serialization type is
// recorded alongside the value so reads can restore the original Go type.
func (s *Store) SetAppState(ctx context.Context, key string, value any, description string) error {
	var valueStr, valueType string

	switch v := value.(type) {
	case bool:
		valueStr = strconv.FormatBool(v)
		valueType = "bool"
	case int:
		valueStr = strconv.Itoa(v)
		valueType = "int"
	case int64:
		valueStr = strconv.FormatInt(v, 10)
		valueType = "int"
	case float64:
		valueStr = strconv.FormatFloat(v, 'g', -1, 64)
		valueType = "float"
	case string:
		valueStr = v
		valueType = "string"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("set app state %q: %w", key, err)
		}
		valueStr = string(b)
		valueType = "json"
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO app_state (key, value, value_type, description, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			key, valueStr, valueType, nullString(description),
			time.Now().UTC().Format(timeFormat))
		return err
	})
}

// GetAppState returns the stored value for key restored to its recorded
// type, or def when the key is absent or the stored value fails to
// deserialize.
func (s *Store) GetAppState(ctx context.Context, key string, def any) any {
	var valueStr, valueType string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, value_type FROM app_state WHERE key = ?`, key).
		Scan(&valueStr, &valueType)
	if err != nil {
		return def
	}

	switch valueType {
	case "bool":
		v, err := strconv.ParseBool(valueStr)
		if err != nil {
			return def
		}
		return v
	case "int":
		v, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			return def
		}
		return int(v)
	case "float":
		v, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return def
		}
		return v
	case "json":
		var v any
		if err := json.Unmarshal([]byte(valueStr), &v); err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("malformed stored app state")
			return def
		}
		return v
	default:
		return valueStr
	}
}

// DeleteAppState removes a key. Returns true if a row existed.
func (s *Store) DeleteAppState(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM app_state WHERE key = ?`, key)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}
