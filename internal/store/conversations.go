package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/relay/internal/domain"
)

const conversationColumns = `id, kind, name, COALESCE(admin_id, ''), COALESCE(last_message_id, ''), last_activity_at, created_at`

func (t *Tx) scanConversation(ctx context.Context, row rowScanner) (*domain.Conversation, error) {
	var (
		c        domain.Conversation
		activity sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.AdminID, &c.LastMessageID, &activity, &c.CreatedAt); err != nil {
		return nil, err
	}
	if activity.Valid {
		c.LastActivityAt = &activity.Int64
	}
	members, err := t.memberIDs(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.MemberIDs = members
	return &c, nil
}

func (t *Tx) memberIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id FROM conversation_members
		WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("members of %q: %w", conversationID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertConversation creates a conversation and its membership rows.
// directKey is stored only for direct conversations; its unique index rejects a
// second direct conversation for the same pair.
func (t *Tx) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	var directKey, adminID sql.NullString
	if c.Kind == domain.KindDirect && len(c.MemberIDs) == 2 {
		directKey = sql.NullString{String: domain.DirectKey(c.MemberIDs[0], c.MemberIDs[1]), Valid: true}
	}
	if c.AdminID != "" {
		adminID = sql.NullString{String: c.AdminID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, name, admin_id, direct_key, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Kind, c.Name, adminID, directKey, c.LastActivityAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return t.appendMembers(ctx, c.ID, 0, c.MemberIDs)
}

func (t *Tx) appendMembers(ctx context.Context, conversationID string, start int, userIDs []string) error {
	for i, id := range userIDs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, position) VALUES (?, ?, ?)`,
			conversationID, id, start+i); err != nil {
			return fmt.Errorf("add member %q: %w", id, err)
		}
	}
	return nil
}

// GetConversation returns a conversation with its member ids, or nil.
func (t *Tx) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := t.scanConversation(ctx, t.tx.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// FindDirect returns the direct conversation between a and b, or nil.
func (t *Tx) FindDirect(ctx context.Context, a, b string) (*domain.Conversation, error) {
	c, err := t.scanConversation(ctx, t.tx.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE kind = 'direct' AND direct_key = ?`, domain.DirectKey(a, b)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// AddMembers appends userIDs to the conversation after its current members.
func (t *Tx) AddMembers(ctx context.Context, conversationID string, userIDs []string) error {
	var next int
	if err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM conversation_members WHERE conversation_id = ?`,
		conversationID).Scan(&next); err != nil {
		return fmt.Errorf("next member position: %w", err)
	}
	return t.appendMembers(ctx, conversationID, next, userIDs)
}

// RemoveMember deletes userID from the conversation membership.
func (t *Tx) RemoveMember(ctx context.Context, conversationID, userID string) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID); err != nil {
		return fmt.Errorf("remove member %q: %w", userID, err)
	}
	return nil
}

// TouchConversation records the latest message and activity time.
func (t *Tx) TouchConversation(ctx context.Context, id, lastMessageID string, at int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, last_activity_at = ? WHERE id = ?`,
		lastMessageID, at, id); err != nil {
		return fmt.Errorf("touch conversation %q: %w", id, err)
	}
	return nil
}

// ConversationsForUser lists the conversations userID belongs to, most recent
// activity first; conversations without activity sort last.
func (t *Tx) ConversationsForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_activity_at IS NULL, c.last_activity_at DESC, c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	convs := make([]domain.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := t.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			convs = append(convs, *c)
		}
	}
	return convs, nil
}
