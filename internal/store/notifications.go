package store

import (
	"context"
	"fmt"
	"time"
)

// QueueNotification adds a notification to the delivery outbox.
func (db *DB) QueueNotification(ctx context.Context, n *Notification) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO notifications (kind, to_email, to_name, from_name, preview, conversation_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		n.Kind, n.ToEmail, n.ToName, n.FromName, n.Preview, n.ConversationID, now, now)
	if err != nil {
		return 0, fmt.Errorf("queue notification: %w", err)
	}
	return res.LastInsertId()
}

// MarkNotificationSending claims a queued notification. Returns false if another
// worker already claimed it.
func (db *DB) MarkNotificationSending(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = 'sending', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'queued'`, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReclaimNotifications returns notifications stuck in sending to the queue.
// Only safe while no dispatcher is delivering.
func (db *DB) ReclaimNotifications(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE notifications SET status = 'queued', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, fmt.Errorf("reclaim notifications: %w", err)
	}
	return res.RowsAffected()
}

// MarkNotificationSent records a successful delivery.
func (db *DB) MarkNotificationSent(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE notifications SET status = 'sent', error_message = '', updated_at = ? WHERE id = ?`, now, id)
	return err
}

// MarkNotificationFailed records a failed delivery with its error.
func (db *DB) MarkNotificationFailed(ctx context.Context, id int64, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `UPDATE notifications SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// PendingNotifications returns queued notifications, oldest first.
func (db *DB) PendingNotifications(ctx context.Context, limit int) ([]Notification, error) {
	return db.listNotifications(ctx, `WHERE status = 'queued' ORDER BY created_at, id LIMIT ?`, limit)
}

// RecentNotifications returns the newest notifications regardless of status.
func (db *DB) RecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	return db.listNotifications(ctx, `ORDER BY id DESC LIMIT ?`, limit)
}

func (db *DB) listNotifications(ctx context.Context, clause string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, to_email, to_name, from_name, preview, conversation_id, status, attempts, error_message
		FROM notifications `+clause, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.ToEmail, &n.ToName, &n.FromName, &n.Preview, &n.ConversationID, &n.Status, &n.Attempts, &n.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
