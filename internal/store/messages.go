package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/relay/internal/domain"
)

const messageColumns = `id, conversation_id, sender_id, content, created_at, is_deleted, reactions`

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m         domain.Message
		reactions string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsDeleted, &reactions); err != nil {
		return nil, err
	}
	m.Reactions = domain.Reactions{}
	if err := json.Unmarshal([]byte(reactions), &m.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions of %q: %w", m.ID, err)
	}
	return &m, nil
}

func encodeReactions(r domain.Reactions) (string, error) {
	if r == nil {
		r = domain.Reactions{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode reactions: %w", err)
	}
	return string(data), nil
}

// InsertMessage stores a new message.
func (t *Tx) InsertMessage(ctx context.Context, m *domain.Message) error {
	reactions, err := encodeReactions(m.Reactions)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt, m.IsDeleted, reactions)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns a message by id, or nil.
func (t *Tx) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(t.tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// MarkMessageDeleted soft-deletes a message. The flag is never cleared.
func (t *Tx) MarkMessageDeleted(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message %q: %w", id, err)
	}
	return nil
}

// SetReactions replaces the reaction mapping of a message.
func (t *Tx) SetReactions(ctx context.Context, id string, r domain.Reactions) error {
	reactions, err := encodeReactions(r)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE messages SET reactions = ? WHERE id = ?`, reactions, id); err != nil {
		return fmt.Errorf("set reactions of %q: %w", id, err)
	}
	return nil
}

// ListMessages returns the messages of a conversation in creation order.
func (t *Tx) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, seq`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LastMessageSeq returns the insertion sequence of the newest message in a
// conversation, or 0 when it has none.
func (t *Tx) LastMessageSeq(ctx context.Context, conversationID string) (int64, error) {
	var seq int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&seq)
	return seq, err
}

// CountUnread counts messages in a conversation inserted after afterSeq and
// not sent by userID. Sequence order is insertion order, so messages sharing
// a timestamp with the read cursor are still ordered against it.
func (t *Tx) CountUnread(ctx context.Context, conversationID, userID string, afterSeq int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND seq > ? AND sender_id != ?`,
		conversationID, afterSeq, userID).Scan(&n)
	return n, err
}

// MessageCount returns the total number of stored messages.
func (t *Tx) MessageCount(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
