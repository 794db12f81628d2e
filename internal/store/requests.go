package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/relay/internal/domain"
)

const requestColumns = `id, sender_id, receiver_id, status, created_at, expires_at`

func scanRequest(row rowScanner) (*domain.ConnectionRequest, error) {
	var r domain.ConnectionRequest
	if err := row.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.Status, &r.CreatedAt, &r.ExpiresAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *Tx) queryRequests(ctx context.Context, query string, args ...any) ([]domain.ConnectionRequest, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reqs []domain.ConnectionRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, rows.Err()
}

// InsertRequest creates a connection request.
func (t *Tx) InsertRequest(ctx context.Context, r *domain.ConnectionRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO connection_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SenderID, r.ReceiverID, r.Status, r.CreatedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest returns a request by id, or nil.
func (t *Tx) GetRequest(ctx context.Context, id string) (*domain.ConnectionRequest, error) {
	r, err := scanRequest(t.tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM connection_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// SetRequestStatus patches the status of a request.
func (t *Tx) SetRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE connection_requests SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set request %q status: %w", id, err)
	}
	return nil
}

// LatestRequest returns the most recent request from sender to receiver, or nil.
func (t *Tx) LatestRequest(ctx context.Context, senderID, receiverID string) (*domain.ConnectionRequest, error) {
	r, err := scanRequest(t.tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE sender_id = ? AND receiver_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, senderID, receiverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// RequestsBetween returns every request between the two users in either direction.
func (t *Tx) RequestsBetween(ctx context.Context, a, b string) ([]domain.ConnectionRequest, error) {
	return t.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, rowid`, a, b, b, a)
}

// RequestsByReceiver returns requests addressed to receiverID with the given status.
func (t *Tx) RequestsByReceiver(ctx context.Context, receiverID string, status domain.RequestStatus) ([]domain.ConnectionRequest, error) {
	return t.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE receiver_id = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC`, receiverID, status)
}

// RequestsBySender returns every request sent by senderID, newest first.
func (t *Tx) RequestsBySender(ctx context.Context, senderID string) ([]domain.ConnectionRequest, error) {
	return t.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM connection_requests
		WHERE sender_id = ?
		ORDER BY created_at DESC, rowid DESC`, senderID)
}
