package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradechat-backend/internal/models"
)

// MessageRepo stores messages in PostgreSQL.
type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id::text, conversation_id, COALESCE(user_id::text, ''), sender, text, timestamp, edited`

// ownerClause returns the owner predicate and its argument list. The
// placeholder index is n.
func ownerClause(owner string, n int) (string, []interface{}, error) {
	if owner == "" {
		return "user_id IS NULL", nil, nil
	}
	uid, err := uuid.Parse(owner)
	if err != nil {
		return "", nil, fmt.Errorf("invalid owner id: %w", err)
	}
	return fmt.Sprintf("user_id = $%d", n), []interface{}{uid}, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Sender, &m.Text, &m.Timestamp, &m.Edited)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) Create(ctx context.Context, msg *models.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	var owner *uuid.UUID
	if msg.UserID != "" {
		uid, err := uuid.Parse(msg.UserID)
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
		owner = &uid
	}

	query := `
		INSERT INTO chat_messages (id, conversation_id, user_id, sender, text, edited, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING timestamp`

	var ts interface{}
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp
	}

	if err := r.pool.QueryRow(ctx, query,
		id, msg.ConversationID, owner, msg.Sender, msg.Text, msg.Edited, ts,
	).Scan(&msg.Timestamp); err != nil {
		return err
	}
	msg.ID = id.String()
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID, owner string) (*models.Message, error) {
	mid, err := uuid.Parse(messageID)
	if err != nil {
		return nil, ErrNotFound
	}
	clause, args, err := ownerClause(owner, 2)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1 AND ` + clause
	m, err := scanMessage(r.pool.QueryRow(ctx, query, append([]interface{}{mid}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID, owner string) ([]*models.Message, error) {
	clause, args, err := ownerClause(owner, 2)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumns + ` FROM chat_messages
		WHERE conversation_id = $1 AND ` + clause + `
		ORDER BY timestamp ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, append([]interface{}{conversationID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListConversations picks the newest row per conversation with DISTINCT ON.
// Ties on timestamp across conversations keep the order Postgres returns.
func (r *MessageRepo) ListConversations(ctx context.Context, owner string) ([]*models.Conversation, error) {
	clause, args, err := ownerClause(owner, 1)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT conversation_id, text, timestamp FROM (
			SELECT DISTINCT ON (conversation_id) conversation_id, text, timestamp
			FROM chat_messages
			WHERE ` + clause + `
			ORDER BY conversation_id, timestamp DESC, id DESC
		) latest
		ORDER BY timestamp DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []*models.Conversation{}
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ConversationID, &c.LastMessage, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *MessageRepo) UpdateText(ctx context.Context, conversationID, messageID, owner, text string) (*models.Message, error) {
	mid, err := uuid.Parse(messageID)
	if err != nil {
		return nil, ErrNotFound
	}
	clause, args, err := ownerClause(owner, 4)
	if err != nil {
		return nil, err
	}

	query := `UPDATE chat_messages SET text = $1, edited = TRUE
		WHERE id = $2 AND conversation_id = $3 AND ` + clause + `
		RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, append([]interface{}{text, mid, conversationID}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MessageRepo) Delete(ctx context.Context, messageID, owner string) error {
	mid, err := uuid.Parse(messageID)
	if err != nil {
		return ErrNotFound
	}
	clause, args, err := ownerClause(owner, 2)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1 AND `+clause, append([]interface{}{mid}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepo) DeleteConversation(ctx context.Context, conversationID, owner string) (int64, error) {
	clause, args, err := ownerClause(owner, 2)
	if err != nil {
		return 0, err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_messages WHERE conversation_id = $1 AND `+clause,
		append([]interface{}{conversationID}, args...)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
