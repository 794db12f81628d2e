package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/relay/internal/domain"
)

// UpsertReceipt sets the read cursor of userID in a conversation.
func (t *Tx) UpsertReceipt(ctx context.Context, r *domain.ReadReceipt) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO read_receipts (user_id, conversation_id, last_read_at, last_read_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, conversation_id) DO UPDATE SET
			last_read_at = excluded.last_read_at,
			last_read_seq = excluded.last_read_seq`,
		r.UserID, r.ConversationID, r.LastReadAt, r.LastReadSeq)
	if err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}
	return nil
}

// GetReceipt returns the read cursor, or nil when the user never read the conversation.
func (t *Tx) GetReceipt(ctx context.Context, userID, conversationID string) (*domain.ReadReceipt, error) {
	r := domain.ReadReceipt{UserID: userID, ConversationID: conversationID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT last_read_at, last_read_seq FROM read_receipts WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID).Scan(&r.LastReadAt, &r.LastReadSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
