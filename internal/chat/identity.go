package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
)

// EnsureUser returns the user bound to the identity, creating it on first
// sight. The profile is refreshed from the identity and the user is marked
// online. Repeated calls never create a second row.
func (e *Engine) EnsureUser(ctx context.Context, id domain.Identity) (*domain.User, error) {
	return e.upsertUser(ctx, "ensure_user", id, true)
}

// SyncIdentity refreshes the profile fields of a user from the identity
// provider without touching presence. Unknown identities are created offline.
func (e *Engine) SyncIdentity(ctx context.Context, id domain.Identity) (*domain.User, error) {
	return e.upsertUser(ctx, "sync_identity", id, false)
}

func (e *Engine) upsertUser(ctx context.Context, op string, id domain.Identity, markOnline bool) (*domain.User, error) {
	if strings.TrimSpace(id.ExternalID) == "" {
		return nil, domain.InvalidState("external id is required")
	}
	var user *domain.User
	err := e.mutate(ctx, op, func(tx *store.Tx, c *change) error {
		now := e.now().UnixMilli()
		name := displayName(id)
		existing, err := tx.GetUserByExternalID(ctx, id.ExternalID)
		if err != nil {
			return err
		}
		if existing == nil {
			user = &domain.User{
				ID:          uuid.NewString(),
				ExternalID:  id.ExternalID,
				DisplayName: name,
				Email:       id.Email,
				AvatarRef:   id.AvatarRef,
				IsOnline:    markOnline,
				LastSeenAt:  now,
			}
			if err := tx.InsertUser(ctx, user); err != nil {
				return err
			}
			c.touch(live.UserTopic(user.ID), live.UsersTopic)
			return nil
		}

		user = existing
		changed := false
		if existing.DisplayName != name || existing.Email != id.Email || existing.AvatarRef != id.AvatarRef {
			if err := tx.UpdateUserProfile(ctx, existing.ID, name, id.Email, id.AvatarRef); err != nil {
				return err
			}
			user.DisplayName, user.Email, user.AvatarRef = name, id.Email, id.AvatarRef
			changed = true
		}
		if markOnline {
			if _, err := tx.SetPresence(ctx, existing.ID, true, now); err != nil {
				return err
			}
			user.IsOnline, user.LastSeenAt = true, now
			changed = true
		}
		if changed {
			c.touch(live.UserTopic(user.ID), live.UsersTopic)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// displayName falls back to the email local part, then to the external id.
func displayName(id domain.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return local
	}
	return id.ExternalID
}

// GetUser returns a user by id.
func (e *Engine) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) (*domain.User, error) {
		return e.getUser(ctx, r, userID)
	})
}

func (e *Engine) getUser(ctx context.Context, r *reader, userID string) (*domain.User, error) {
	r.depend(live.UserTopic(userID))
	u, err := r.tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.NotFound("user", userID)
	}
	return u, nil
}

// GetUserByExternalID returns the user bound to an external identity.
func (e *Engine) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) (*domain.User, error) {
		u, err := r.tx.GetUserByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, domain.NotFound("user", externalID)
		}
		return u, nil
	})
}

// SearchUsers lists other users whose display name contains query.
func (e *Engine) SearchUsers(ctx context.Context, userID, query string) ([]domain.User, error) {
	return view(ctx, e, func(ctx context.Context, r *reader) ([]domain.User, error) {
		return e.searchUsers(ctx, r, userID, query)
	})
}

func (e *Engine) searchUsers(ctx context.Context, r *reader, userID, query string) ([]domain.User, error) {
	r.depend(live.UsersTopic)
	users, err := r.tx.SearchUsers(ctx, userID, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}
