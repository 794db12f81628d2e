package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/relay/internal/domain"
)

const userColumns = `id, external_id, display_name, email, avatar_ref, is_online, last_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.Email, &u.AvatarRef, &u.IsOnline, &u.LastSeenAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser creates a user row.
func (t *Tx) InsertUser(ctx context.Context, u *domain.User) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, external_id, display_name, email, avatar_ref, is_online, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalID, u.DisplayName, u.Email, u.AvatarRef, u.IsOnline, u.LastSeenAt, u.LastSeenAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUserProfile refreshes the mutable profile fields of a user.
func (t *Tx) UpdateUserProfile(ctx context.Context, id, displayName, email, avatarRef string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users SET display_name = ?, email = ?, avatar_ref = ? WHERE id = ?`,
		displayName, email, avatarRef, id)
	if err != nil {
		return fmt.Errorf("update user %q: %w", id, err)
	}
	return nil
}

// SetPresence patches the online flag and last-seen time. Returns false if the user is missing.
func (t *Tx) SetPresence(ctx context.Context, id string, online bool, lastSeenAt int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET is_online = ?, last_seen_at = ? WHERE id = ?`, online, lastSeenAt, id)
	if err != nil {
		return false, fmt.Errorf("set presence %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUser returns a user by id, or nil if none exists.
func (t *Tx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUserByExternalID returns the user bound to an external identity, or nil.
func (t *Tx) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUsers resolves the given ids, preserving order and skipping unknown ids.
func (t *Tx) GetUsers(ctx context.Context, ids []string) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := t.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

// SearchUsers returns users other than excludeID whose display name contains query,
// case-insensitively. An empty query matches everyone.
func (t *Tx) SearchUsers(ctx context.Context, excludeID, query string) ([]domain.User, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id != ? AND instr(lower(display_name), ?) > 0
		ORDER BY lower(display_name), id`, excludeID, strings.ToLower(query))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// OnlineUserIDs lists users currently flagged online.
func (t *Tx) OnlineUserIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM users WHERE is_online = 1`)
	if err != nil {
		return nil, err
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
