package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/llamalot/llamalot/internal/model"
)

// SaveConversation upserts the conversation row and replaces its entire
// message list: existing messages are deleted and the in-memory list is
// re-inserted with recomputed sequence numbers, so retrieval order is
// exactly the order of c.Messages at save time. A conversation without
// an id is assigned one.
func (s *Store) SaveConversation(ctx context.Context, c *model.Conversation) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO conversations (
				conversation_id, title, model_name, system_prompt,
				total_tokens, total_time, message_count,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Title, nullString(c.ModelName), nullString(c.SystemPrompt),
			c.TotalTokens, c.TotalTime, len(c.Messages),
			c.CreatedAt.UTC().Format(timeFormat), c.UpdatedAt.UTC().Format(timeFormat))
		if err != nil {
			return err
		}

		// Replace-all semantics: attachments cascade with their messages.
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, c.ID); err != nil {
			return err
		}

		for i := range c.Messages {
			if err := saveMessage(tx, &c.Messages[i], c.ID, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug().Str("conversation", c.ID).Int("messages", len(c.Messages)).Msg("conversation saved")
	return nil
}

func saveMessage(tx *sql.Tx, m *model.Message, conversationID string, sequence int) error {
	if m.ID == "" {
		m.ID = fmt.Sprintf("%s_msg_%d", conversationID, sequence)
	}
	m.ConversationID = conversationID
	m.Sequence = sequence
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO messages (
			message_id, conversation_id, role, content,
			model_name, tokens_used, generation_time, timestamp,
			error, is_error, sequence_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, conversationID, string(m.Role), m.Content,
		nullString(m.ModelName), m.TokensUsed, m.GenerationTime,
		m.Timestamp.UTC().Format(timeFormat),
		nullString(m.Error), m.IsError, sequence)
	if err != nil {
		return err
	}

	for i := range m.Attachments {
		a := &m.Attachments[i]
		if a.ID == "" {
			a.ID = fmt.Sprintf("%s_att_%d", m.ID, i)
		}
		if a.Type == "" {
			a.Type = "image"
		}
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO message_attachments (
				attachment_id, message_id, attachment_type,
				data, filename, mime_type, size, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, m.ID, a.Type,
			a.Data, nullString(a.Filename), nullString(a.MimeType), a.Size,
			time.Now().UTC().Format(timeFormat))
		if err != nil {
			return err
		}
	}
	return nil
}

// GetConversation reconstructs a conversation with its messages ordered
// by sequence number. Returns nil if the id is unknown.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, title, model_name, system_prompt,
		       total_tokens, total_time, created_at, updated_at
		FROM conversations WHERE conversation_id = ?`, id)

	var c model.Conversation
	var modelName, systemPrompt, createdAt, updatedAt sql.NullString
	err := row.Scan(&c.ID, &c.Title, &modelName, &systemPrompt,
		&c.TotalTokens, &c.TotalTime, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ModelName = modelName.String
	c.SystemPrompt = systemPrompt.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, model_name, tokens_used,
		       generation_time, timestamp, error, is_error, sequence_number
		FROM messages WHERE conversation_id = ?
		ORDER BY sequence_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Message
		var msgModel, msgError, timestamp sql.NullString
		var tokensUsed sql.NullInt64
		var generationTime sql.NullFloat64
		err := rows.Scan(&m.ID, &m.Role, &m.Content, &msgModel, &tokensUsed,
			&generationTime, &timestamp, &msgError, &m.IsError, &m.Sequence)
		if err != nil {
			return nil, err
		}
		m.ConversationID = id
		m.ModelName = msgModel.String
		m.TokensUsed = int(tokensUsed.Int64)
		m.GenerationTime = generationTime.Float64
		m.Error = msgError.String
		m.Timestamp = parseTime(timestamp)
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range c.Messages {
		atts, err := s.messageAttachments(ctx, c.Messages[i].ID)
		if err != nil {
			return nil, err
		}
		c.Messages[i].Attachments = atts
	}

	return &c, nil
}

func (s *Store) messageAttachments(ctx context.Context, messageID string) ([]model.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attachment_id, attachment_type, data, filename, mime_type, size
		FROM message_attachments WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var a model.Attachment
		var data, filename, mimeType sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Type, &data, &filename, &mimeType, &size); err != nil {
			return nil, err
		}
		a.Data = data.String
		a.Filename = filename.String
		a.MimeType = mimeType.String
		a.Size = size.Int64
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// ListConversations returns conversation summaries, newest-updated
// first, optionally filtered by model name and capped at limit.
func (s *Store) ListConversations(ctx context.Context, modelFilter string, limit int) ([]model.ConversationSummary, error) {
	query := `SELECT conversation_id, title, updated_at FROM conversations`
	args := []any{}
	if modelFilter != "" {
		query += ` WHERE model_name = ?`
		args = append(args, modelFilter)
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var cs model.ConversationSummary
		var updatedAt sql.NullString
		if err := rows.Scan(&cs.ID, &cs.Title, &updatedAt); err != nil {
			return nil, err
		}
		cs.UpdatedAt = parseTime(updatedAt)
		out = append(out, cs)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation; its messages and their
// attachments cascade. Returns true if a row existed.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM conversations WHERE conversation_id = ?`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// ClearAllConversations wipes the full history and returns how many
// conversations were removed. Messages go first so the wipe does not
// depend on cascade being enabled.
func (s *Store) ClearAllConversations(ctx context.Context) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM message_attachments`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM conversations`)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Int("conversations", count).Msg("conversation history cleared")
	return count, nil
}

func nullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
