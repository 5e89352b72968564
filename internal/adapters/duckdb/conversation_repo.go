package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

func (r *Repository) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	query := `
	INSERT INTO conversations (id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		updated_at = excluded.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query, string(conv.ID), conv.Title, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	return err
}

func (r *Repository) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, string(id))

	var conv domain.Conversation
	var idStr string
	if err := row.Scan(&idStr, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, fmt.Errorf("%w: %s", domain.ErrConversationNotFound, id)
		}
		return domain.Conversation{}, err
	}
	conv.ID = domain.ConversationID(idStr)
	return conv, nil
}

func (r *Repository) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		var conv domain.Conversation
		var idStr string
		if err := rows.Scan(&idStr, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conv.ID = domain.ConversationID(idStr)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (r *Repository) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) AddMessage(ctx context.Context, msg domain.Message) error {
	stepsJSON, err := json.Marshal(msg.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	toolCallJSON, err := json.Marshal(msg.ToolCall)
	if err != nil {
		return fmt.Errorf("failed to marshal tool call: %w", err)
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO messages (id, conversation_id, role, content, thought, steps, tool_call, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.ConversationID), string(msg.Role), msg.Content, msg.Thought,
		string(stepsJSON), string(toolCallJSON), string(metadataJSON), msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt.UTC(), string(msg.ConversationID)); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the newest limit messages in chronological order.
// limit <= 0 returns all of them.
func (r *Repository) ListMessages(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error) {
	query := `SELECT id, conversation_id, role, content, thought, CAST(steps AS TEXT), CAST(tool_call AS TEXT), CAST(metadata AS TEXT), created_at
	FROM messages WHERE conversation_id = ? ORDER BY seq DESC`
	args := []any{string(convID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var idStr, convStr, roleStr string
		var thought sql.NullString
		var stepsJSON, toolCallJSON, metadataJSON sql.NullString

		if err := rows.Scan(&idStr, &convStr, &roleStr, &msg.Content, &thought, &stepsJSON, &toolCallJSON, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ID = domain.MessageID(idStr)
		msg.ConversationID = domain.ConversationID(convStr)
		msg.Role = domain.MessageRole(roleStr)
		msg.Thought = thought.String

		if err := unmarshalNullable(stepsJSON, &msg.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps for message %s: %w", idStr, err)
		}
		if err := unmarshalNullable(toolCallJSON, &msg.ToolCall); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool call for message %s: %w", idStr, err)
		}
		if err := unmarshalNullable(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for message %s: %w", idStr, err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
