package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"groupmatch/internal/app/store"
	"groupmatch/internal/app/user"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/invariant"
	"groupmatch/internal/pkg/logx"
)

// Registry is the source of truth for room membership. A user belongs to at most one
// room; rooms whose last member leaves are pruned.
type Registry struct {
	// mu makes every mutation atomic with respect to readers.
	mu sync.RWMutex

	rooms    store.Store[Room]
	memberOf store.Store[string]

	logger zerolog.Logger
}

// NewRegistry creates a Registry over a room store and a user id -> room name index.
func NewRegistry(rooms store.Store[Room], memberOf store.Store[string]) *Registry {
	return &Registry{
		rooms:    rooms,
		memberOf: memberOf,
		logger:   logx.Component("RoomRegistry"),
	}
}

func (r *Registry) getLocked(ctx context.Context, name string) (Room, error) {
	rm, ok, err := r.rooms.Get(ctx, name)
	if err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", name, err)
	}
	if !ok {
		return Room{}, errs.NewError(errs.ErrRoomNotFound)
	}
	return rm.clone(), nil
}

func (r *Registry) putLocked(ctx context.Context, rm Room) error {
	if err := r.rooms.Put(ctx, rm.Name, rm); err != nil {
		return fmt.Errorf("store room %s: %w", rm.Name, err)
	}
	return nil
}

// removeLocked drops userID from the room it belongs to, if any, pruning the room when
// it becomes empty. It returns the name of the room left.
func (r *Registry) removeLocked(ctx context.Context, userID string) (string, error) {
	name, ok, err := r.memberOf.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup room of %s: %w", userID, err)
	}
	if !ok {
		return "", nil
	}

	if err := r.memberOf.Delete(ctx, userID); err != nil {
		return "", fmt.Errorf("unindex %s: %w", userID, err)
	}

	rm, err := r.getLocked(ctx, name)
	if errs.HasCode(err, errs.ErrRoomNotFound) {
		invariant.Check(false, "membership index points at a missing room", "user_id", userID, "room", name)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	delete(rm.Members, userID)

	if rm.Len() == 0 {
		if err := r.rooms.Delete(ctx, name); err != nil {
			return "", fmt.Errorf("prune room %s: %w", name, err)
		}
		r.logger.Info().Str("room", name).Msg("Room is empty. Room pruned.")
		return name, nil
	}

	if err := r.putLocked(ctx, rm); err != nil {
		return "", err
	}
	return name, nil
}

// addLocked inserts u into rm, moving it out of any other room first.
func (r *Registry) addLocked(ctx context.Context, rm *Room, u user.User) error {
	current, ok, err := r.memberOf.Get(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("lookup room of %s: %w", u.ID, err)
	}

	if ok && current != rm.Name {
		r.logger.Warn().Str("user_id", u.ID).Str("from", current).Str("to", rm.Name).Msg("Moving user between rooms.")
		if _, err := r.removeLocked(ctx, u.ID); err != nil {
			return err
		}
	}

	rm.Members[u.ID] = u
	if err := r.memberOf.Put(ctx, u.ID, rm.Name); err != nil {
		return fmt.Errorf("index %s: %w", u.ID, err)
	}
	return nil
}

// unindexLocked drops the membership index entries of a room that was never stored.
func (r *Registry) unindexLocked(ctx context.Context, rm Room) {
	for id := range rm.Members {
		if err := r.memberOf.Delete(ctx, id); err != nil {
			r.logger.Error().Err(err).Str("room", rm.Name).Str("user_id", id).Msg("Could not roll back membership index.")
		}
	}
}

// CreateRoom installs a fully populated room in a single mutation. Duplicate members are
// a programming error and are collapsed. The name must be free.
func (r *Registry) CreateRoom(ctx context.Context, name string, host user.User, members []user.User) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.rooms.Get(ctx, name); err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", name, err)
	} else if ok {
		return Room{}, errs.NewError(errs.ErrRoomExists)
	}

	rm := Room{Name: name, Host: host, Members: make(map[string]user.User, len(members))}
	for _, m := range members {
		if !invariant.Check(!rm.Has(m.ID), "duplicate room member", "room", name, "user_id", m.ID) {
			continue
		}
		if err := r.addLocked(ctx, &rm, m); err != nil {
			r.unindexLocked(ctx, rm)
			return Room{}, err
		}
	}

	if err := r.putLocked(ctx, rm); err != nil {
		r.unindexLocked(ctx, rm)
		return Room{}, err
	}

	r.logger.Info().Str("room", name).Str("host", host.ID).Int("members", rm.Len()).Msg("Room created.")
	return rm.clone(), nil
}

// CreateOrExtendRoom creates the room with host as its first member, or adds host to the
// room when it already exists.
func (r *Registry) CreateOrExtendRoom(ctx context.Context, name string, host user.User) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.getLocked(ctx, name)
	switch {
	case errs.HasCode(err, errs.ErrRoomNotFound):
		rm = Room{Name: name, Host: host, Members: make(map[string]user.User)}
		r.logger.Info().Str("room", name).Str("host", host.ID).Msg("Room created.")
	case err != nil:
		return Room{}, err
	}

	if err := r.addLocked(ctx, &rm, host); err != nil {
		return Room{}, err
	}
	if err := r.putLocked(ctx, rm); err != nil {
		return Room{}, err
	}
	return rm.clone(), nil
}

// AddMember adds u to an existing room. Adding a current member refreshes its record.
func (r *Registry) AddMember(ctx context.Context, name string, u user.User) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.getLocked(ctx, name)
	if err != nil {
		return Room{}, err
	}

	if err := r.addLocked(ctx, &rm, u); err != nil {
		return Room{}, err
	}
	if err := r.putLocked(ctx, rm); err != nil {
		return Room{}, err
	}

	r.logger.Debug().Str("room", name).Str("user_id", u.ID).Int("members", rm.Len()).Msg("Member added.")
	return rm.clone(), nil
}

// RemoveMember removes userID from the named room. It returns ErrRoomNotFound for an
// unknown room and ErrUserNotFound when the user is not a member. The returned room is
// the remaining state; it has no members when the room was pruned.
func (r *Registry) RemoveMember(ctx context.Context, name, userID string) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.getLocked(ctx, name)
	if err != nil {
		return Room{}, err
	}
	if !rm.Has(userID) {
		return Room{}, errs.NewError(errs.ErrUserNotFound)
	}

	if _, err := r.removeLocked(ctx, userID); err != nil {
		return Room{}, err
	}

	delete(rm.Members, userID)
	r.logger.Debug().Str("room", name).Str("user_id", userID).Int("members", rm.Len()).Msg("Member removed.")
	return rm, nil
}

// RemoveUserFromAllRooms removes userID from every room it belongs to and returns the
// names of those rooms. Unknown users yield no rooms and no error.
func (r *Registry) RemoveUserFromAllRooms(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, err := r.removeLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	return []string{name}, nil
}

// GetByName returns the named room or ErrRoomNotFound.
func (r *Registry) GetByName(ctx context.Context, name string) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.getLocked(ctx, name)
}

// GetByUserID returns the room userID belongs to or ErrRoomNotFound.
func (r *Registry) GetByUserID(ctx context.Context, userID string) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok, err := r.memberOf.Get(ctx, userID)
	if err != nil {
		return Room{}, fmt.Errorf("lookup room of %s: %w", userID, err)
	}
	if !ok {
		return Room{}, errs.NewError(errs.ErrRoomNotFound)
	}

	rm, err := r.getLocked(ctx, name)
	if err != nil {
		return Room{}, err
	}
	if !invariant.Check(rm.Has(userID), "membership index disagrees with room", "user_id", userID, "room", name) {
		return Room{}, errs.NewError(errs.ErrRoomNotFound)
	}
	return rm, nil
}

// Exists reports whether a room with name is registered.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok, err := r.rooms.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("get room %s: %w", name, err)
	}
	return ok, nil
}

// List returns every room ordered by name.
func (r *Registry) List(ctx context.Context) ([]Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms, err := r.rooms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	for i := range rooms {
		rooms[i] = rooms[i].clone()
	}
	return rooms, nil
}

// Reset drops every room. It runs at startup since no session survives a restart.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rooms.Clear(ctx); err != nil {
		return fmt.Errorf("reset rooms: %w", err)
	}
	if err := r.memberOf.Clear(ctx); err != nil {
		return fmt.Errorf("reset memberships: %w", err)
	}
	return nil
}
