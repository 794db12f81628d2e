package store

import (
	"context"
	"fmt"

	"github.com/matheus3301/relay/internal/domain"
)

// UpsertTyping refreshes the typing signal of a user in a conversation.
func (t *Tx) UpsertTyping(ctx context.Context, s *domain.TypingSignal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO typing_signals (user_id, conversation_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, conversation_id) DO UPDATE SET updated_at = excluded.updated_at`,
		s.UserID, s.ConversationID, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert typing: %w", err)
	}
	return nil
}

// DeleteTyping removes the typing signal outright.
func (t *Tx) DeleteTyping(ctx context.Context, userID, conversationID string) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM typing_signals WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID); err != nil {
		return fmt.Errorf("delete typing: %w", err)
	}
	return nil
}

// TypingSince lists signals in a conversation updated strictly after since,
// excluding excludeUserID.
func (t *Tx) TypingSince(ctx context.Context, conversationID, excludeUserID string, since int64) ([]domain.TypingSignal, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id, conversation_id, updated_at FROM typing_signals
		WHERE conversation_id = ? AND user_id != ? AND updated_at > ?
		ORDER BY updated_at`, conversationID, excludeUserID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TypingSignal
	for rows.Next() {
		var s domain.TypingSignal
		if err := rows.Scan(&s.UserID, &s.ConversationID, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
