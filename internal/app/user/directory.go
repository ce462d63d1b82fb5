package user

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"groupmatch/internal/app/store"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
)

// Directory tracks connected users by their stable id, with a secondary index from the
// current session id back to the user.
type Directory struct {
	// mu serializes writers so the two indexes never diverge.
	mu sync.RWMutex

	users    store.Store[User]
	sessions store.Store[string]

	logger zerolog.Logger
}

// NewDirectory creates a Directory over the given stores.
func NewDirectory(users store.Store[User], sessions store.Store[string]) *Directory {
	return &Directory{
		users:    users,
		sessions: sessions,
		logger:   logx.Component("UserDirectory"),
	}
}

// Resolve returns the directory entry for u.ID. Unknown users are created from u; known
// users only get their session id replaced. created reports which path was taken.
func (d *Directory) Resolve(ctx context.Context, u User) (resolved User, created bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok, err := d.users.Get(ctx, u.ID)
	if err != nil {
		return User{}, false, fmt.Errorf("resolve user %s: %w", u.ID, err)
	}

	if !ok {
		if err := d.putLocked(ctx, u); err != nil {
			return User{}, false, err
		}
		d.logger.Debug().Str("user_id", u.ID).Str("session_id", u.SessionID).Msg("User created.")
		return u, true, nil
	}

	if existing.SessionID != u.SessionID {
		if existing.SessionID != "" {
			if err := d.sessions.Delete(ctx, existing.SessionID); err != nil {
				return User{}, false, fmt.Errorf("drop stale session of %s: %w", u.ID, err)
			}
		}
		existing.SessionID = u.SessionID
		if err := d.putLocked(ctx, existing); err != nil {
			return User{}, false, err
		}
		d.logger.Debug().Str("user_id", u.ID).Str("session_id", u.SessionID).Msg("User session updated.")
	}

	return existing, false, nil
}

func (d *Directory) putLocked(ctx context.Context, u User) error {
	if err := d.users.Put(ctx, u.ID, u); err != nil {
		return fmt.Errorf("store user %s: %w", u.ID, err)
	}
	if u.SessionID != "" {
		if err := d.sessions.Put(ctx, u.SessionID, u.ID); err != nil {
			return fmt.Errorf("index session of %s: %w", u.ID, err)
		}
	}
	return nil
}

// Get returns the user with id or ErrUserNotFound.
func (d *Directory) Get(ctx context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok, err := d.users.Get(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	if !ok {
		return User{}, errs.NewError(errs.ErrUserNotFound)
	}
	return u, nil
}

// BySession returns the user whose current session is sessionID or ErrUserNotFound.
// Replaced sessions are no longer indexed, so a stale session never resolves.
func (d *Directory) BySession(ctx context.Context, sessionID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return User{}, fmt.Errorf("lookup session %s: %w", sessionID, err)
	}
	if !ok {
		return User{}, errs.NewError(errs.ErrUserNotFound)
	}

	u, ok, err := d.users.Get(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	if !ok || u.SessionID != sessionID {
		return User{}, errs.NewError(errs.ErrUserNotFound)
	}
	return u, nil
}

// Remove deletes the user and its session index entry. It reports whether the user existed.
func (d *Directory) Remove(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok, err := d.users.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get user %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	if u.SessionID != "" {
		if err := d.sessions.Delete(ctx, u.SessionID); err != nil {
			return false, fmt.Errorf("drop session of %s: %w", id, err)
		}
	}
	if err := d.users.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete user %s: %w", id, err)
	}

	d.logger.Debug().Str("user_id", id).Msg("User removed.")
	return true, nil
}

// List returns every connected user ordered by id.
func (d *Directory) List(ctx context.Context) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users, err := d.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Reset drops every entry. It runs at startup since no session survives a restart.
func (d *Directory) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.users.Clear(ctx); err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	if err := d.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	return nil
}
