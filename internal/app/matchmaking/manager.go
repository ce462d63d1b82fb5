/*
Package matchmaking buckets users by requested group size and turns a full bucket into a room.

Manager is the single serialization point for every mutating flow (join, leave, kick and
disconnect). It owns the buckets, resolves users through the user directory, materializes
rooms through the room registry and asks a Binder to attach live sessions once a room forms.
*/
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"groupmatch/internal/app/room"
	"groupmatch/internal/app/user"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/invariant"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/randx"
)

const (
	// MinGroupSize is the smallest group the matchmaker forms.
	MinGroupSize = 2

	// roomNameAttempts bounds retries when a generated room name is already taken.
	roomNameAttempts = 5
)

// Status is the result kind of a join request.
type Status string

const (
	StatusWaiting       Status = "waiting"
	StatusAlreadyQueued Status = "already-queued"
	StatusMatched       Status = "matched"
)

const (
	msgJoinedQueue = "You have joined the queue. Waiting for more participants."
	msgNewQueue    = "You have been added to a new queue. Waiting for more participants."
	msgMatched     = "Your room is ready."
)

// JoinRequest asks for a seat in a group of GroupSize.
type JoinRequest struct {
	UserID    string
	UserName  string
	Email     string
	SessionID string
	GroupSize int

	// RoomName is a hint for the room formed when the bucket fills.
	RoomName string
}

// Outcome is returned to the requester as the join acknowledgement.
type Outcome struct {
	Status   Status `json:"status"`
	RoomName string `json:"roomName,omitempty"`
	Message  string `json:"message"`
}

// Binder mirrors room membership onto the transport's broadcast groups.
type Binder interface {
	// Bind attaches a live session to a room group and notifies it.
	Bind(sessionID, roomName string) error

	// Unbind detaches a session from a room group.
	Unbind(sessionID, roomName string) error
}

// Manager owns the matchmaking buckets.
type Manager struct {
	// mu serializes join, leave, kick and disconnect. It is always taken before the
	// directory or registry locks and never held while notifying sessions.
	mu sync.Mutex

	users  *user.Directory
	rooms  *room.Registry
	binder Binder

	// queues are kept in creation order for first-fit.
	queues []*Queue
	byUser map[string]*Queue
	nextID uint64

	// bound records the session each room member was bound with when its room formed.
	bound map[string]string

	logger zerolog.Logger
}

// NewManager creates a Manager. binder may be nil, in which case sessions are never bound.
func NewManager(users *user.Directory, rooms *room.Registry, binder Binder) *Manager {
	return &Manager{
		users:  users,
		rooms:  rooms,
		binder: binder,
		byUser: make(map[string]*Queue),
		bound:  make(map[string]string),
		logger: logx.Component("Matchmaker"),
	}
}

type binding struct {
	sessionID string
	userID    string
}

// RequestJoin places the requester in the first bucket of the requested size with a free
// seat, creating one when none exists. When that fills the bucket a room is formed and
// every member's current session is bound to it.
func (m *Manager) RequestJoin(ctx context.Context, req JoinRequest) (Outcome, error) {
	if req.GroupSize < MinGroupSize {
		return Outcome{}, errs.NewError(errs.ErrInvalidGroupSize, MinGroupSize)
	}

	m.mu.Lock()

	// Room members are rejected before Resolve so the session bound to their room stays
	// the one the directory knows.
	if req.UserID != "" {
		if err := m.checkNotInRoomLocked(ctx, req.UserID); err != nil {
			m.mu.Unlock()
			return Outcome{}, err
		}
	}

	u, created, err := m.users.Resolve(ctx, user.User{
		ID:        req.UserID,
		Name:      req.UserName,
		Email:     req.Email,
		SessionID: req.SessionID,
	})
	if err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}

	log := m.logger.With().Str("user_id", u.ID).Int("group_size", req.GroupSize).Logger()
	if created {
		log.Debug().Msg("New user joined matchmaking.")
	}

	if _, queued := m.byUser[u.ID]; queued {
		m.mu.Unlock()
		log.Debug().Msg("User is already queued.")
		return Outcome{
			Status:  StatusAlreadyQueued,
			Message: errs.NewError(errs.ErrAlreadyQueued).Message,
		}, nil
	}

	q := m.firstFitLocked(req.GroupSize)
	msg := msgJoinedQueue
	if q == nil {
		q = m.newQueueLocked(req.GroupSize)
		msg = msgNewQueue
	}
	if !invariant.Check(!q.Full(), "bucket overflow", "queue_id", q.ID, "size", q.Size, "len", q.Len()) {
		q = m.newQueueLocked(req.GroupSize)
		msg = msgNewQueue
	}
	q.add(u)
	m.byUser[u.ID] = q

	if !q.Full() {
		qid, waiting := q.ID, q.Len()
		m.mu.Unlock()
		log.Info().Uint64("queue_id", qid).Int("waiting", waiting).Msg("User is waiting for a match.")
		return Outcome{Status: StatusWaiting, Message: msg}, nil
	}

	rm, bindings, err := m.formRoomLocked(ctx, q, req.RoomName)
	if err != nil {
		// Undo only this request so the bucket is back to its previous state.
		q.remove(u.ID)
		delete(m.byUser, u.ID)
		if q.Len() == 0 {
			m.dropQueueLocked(q)
		}
		m.mu.Unlock()
		return Outcome{}, err
	}

	m.mu.Unlock()

	m.bindAll(rm.Name, bindings)

	log.Info().Str("room", rm.Name).Int("members", rm.Len()).Msg("Bucket filled. Room formed.")
	return Outcome{Status: StatusMatched, RoomName: rm.Name, Message: msgMatched}, nil
}

func (m *Manager) checkNotInRoomLocked(ctx context.Context, userID string) error {
	rm, err := m.rooms.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		m.logger.Debug().Str("user_id", userID).Str("room", rm.Name).Msg("User is already in a room.")
		return errs.NewError(errs.ErrAlreadyInRoom)
	case errs.HasCode(err, errs.ErrRoomNotFound):
		return nil
	default:
		return err
	}
}

// formRoomLocked turns a full bucket into a room and destroys the bucket.
func (m *Manager) formRoomLocked(ctx context.Context, q *Queue, hint string) (room.Room, []binding, error) {
	name, err := m.roomNameLocked(ctx, hint)
	if err != nil {
		return room.Room{}, nil, err
	}

	// Sessions may have changed since the members queued, so take them from the directory.
	members := make([]user.User, 0, q.Len())
	for _, queued := range q.members {
		current, err := m.users.Get(ctx, queued.ID)
		if errs.HasCode(err, errs.ErrUserNotFound) {
			invariant.Check(false, "queued user missing from directory", "user_id", queued.ID, "queue_id", q.ID)
			current = queued
		} else if err != nil {
			return room.Room{}, nil, err
		}
		members = append(members, current)
	}

	rm, err := m.rooms.CreateRoom(ctx, name, members[0], members)
	if err != nil {
		return room.Room{}, nil, fmt.Errorf("form room %s: %w", name, err)
	}

	bindings := make([]binding, 0, len(members))
	for _, mem := range members {
		delete(m.byUser, mem.ID)
		m.bound[mem.ID] = mem.SessionID
		bindings = append(bindings, binding{sessionID: mem.SessionID, userID: mem.ID})
	}
	m.dropQueueLocked(q)

	return rm, bindings, nil
}

// roomNameLocked returns hint when it names no live room, otherwise a fresh generated name.
func (m *Manager) roomNameLocked(ctx context.Context, hint string) (string, error) {
	if hint != "" {
		taken, err := m.rooms.Exists(ctx, hint)
		if err != nil {
			return "", err
		}
		if !taken {
			return hint, nil
		}
		m.logger.Debug().Str("hint", hint).Msg("Room name already in use. Generating a new one.")
	}

	for range roomNameAttempts {
		name, err := randx.RoomName()
		if err != nil {
			return "", err
		}
		taken, err := m.rooms.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", errs.NewError(errs.ErrRoomExists)
}

func (m *Manager) bindAll(roomName string, bindings []binding) {
	if m.binder == nil {
		return
	}
	for _, b := range bindings {
		if err := m.binder.Bind(b.sessionID, roomName); err != nil {
			m.logger.Warn().Err(err).Str("room", roomName).Str("user_id", b.userID).Str("session_id", b.sessionID).
				Msg("Could not bind session to room. Skipping.")
		}
	}
}

func (m *Manager) firstFitLocked(size int) *Queue {
	for _, q := range m.queues {
		if q.Size == size && !q.Full() {
			return q
		}
	}
	return nil
}

func (m *Manager) newQueueLocked(size int) *Queue {
	m.nextID++
	q := newQueue(m.nextID, size)
	m.queues = append(m.queues, q)
	return q
}

func (m *Manager) dropQueueLocked(q *Queue) {
	for i, existing := range m.queues {
		if existing == q {
			m.queues = append(m.queues[:i], m.queues[i+1:]...)
			return
		}
	}
}

// dequeueLocked removes userID from its bucket, destroying the bucket when it empties.
func (m *Manager) dequeueLocked(userID string) bool {
	q, ok := m.byUser[userID]
	if !ok {
		return false
	}
	delete(m.byUser, userID)

	invariant.Check(q.remove(userID), "bucket index points at a bucket without the user", "user_id", userID, "queue_id", q.ID)
	if q.Len() == 0 {
		m.dropQueueLocked(q)
		m.logger.Debug().Uint64("queue_id", q.ID).Msg("Bucket is empty. Bucket removed.")
	}
	return true
}

// LeaveQueue withdraws userID's outstanding join request. It returns ErrNotQueued when
// the user waits in no bucket.
func (m *Manager) LeaveQueue(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dequeueLocked(userID) {
		return errs.NewError(errs.ErrNotQueued)
	}

	m.logger.Info().Str("user_id", userID).Msg("User left the queue.")
	return nil
}

// Disconnect reconciles every piece of state held for the user whose current session is
// sessionID: the directory entry, any bucket seat and every room membership. A session
// that was replaced by a newer one is ignored. Repeated calls are no-ops.
func (m *Manager) Disconnect(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.users.BySession(ctx, sessionID)
	if errs.HasCode(err, errs.ErrUserNotFound) {
		m.logger.Debug().Str("session_id", sessionID).Msg("Disconnected session has no current user. Nothing to reconcile.")
		return nil
	}
	if err != nil {
		return err
	}

	return m.reconcileLocked(ctx, u.ID, true)
}

// DisconnectUser is Disconnect keyed by user id.
func (m *Manager) DisconnectUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reconcileLocked(ctx, userID, true)
}

// reconcileLocked attempts every cleanup step even when an earlier one fails.
func (m *Manager) reconcileLocked(ctx context.Context, userID string, removeUser bool) error {
	var errList []error

	if removeUser {
		if _, err := m.users.Remove(ctx, userID); err != nil {
			errList = append(errList, err)
		}
	}

	dequeued := m.dequeueLocked(userID)
	delete(m.bound, userID)

	left, err := m.rooms.RemoveUserFromAllRooms(ctx, userID)
	if err != nil {
		errList = append(errList, err)
	}

	if err := errors.Join(errList...); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("Reconciliation incomplete.")
		return err
	}

	m.logger.Info().Str("user_id", userID).Bool("dequeued", dequeued).Strs("rooms_left", left).Msg("User state reconciled.")
	return nil
}

// Kick forcibly removes targetID from roomName and unbinds both its current session and
// the session it was bound with. The user stays connected. An unknown target is logged
// and the room is still reconciled.
func (m *Manager) Kick(ctx context.Context, roomName, targetID string) error {
	m.mu.Lock()

	var sessions []string
	target, err := m.users.Get(ctx, targetID)
	switch {
	case errs.HasCode(err, errs.ErrUserNotFound):
		m.logger.Warn().Str("user_id", targetID).Str("room", roomName).Msg("Kick target is not connected.")
	case err != nil:
		m.mu.Unlock()
		return err
	default:
		sessions = append(sessions, target.SessionID)
	}
	if sid, ok := m.bound[targetID]; ok && !slices.Contains(sessions, sid) {
		sessions = append(sessions, sid)
	}

	m.dequeueLocked(targetID)

	if _, err := m.rooms.RemoveMember(ctx, roomName, targetID); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.bound, targetID)

	m.mu.Unlock()

	if m.binder != nil {
		for _, sid := range sessions {
			if err := m.binder.Unbind(sid, roomName); err != nil {
				m.logger.Debug().Err(err).Str("session_id", sid).Str("room", roomName).Msg("Could not unbind kicked session.")
			}
		}
	}

	m.logger.Info().Str("user_id", targetID).Str("room", roomName).Msg("User kicked.")
	return nil
}

// Queues returns a snapshot of every bucket in creation order.
func (m *Manager) Queues() []QueueView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]QueueView, len(m.queues))
	for i, q := range m.queues {
		views[i] = q.view()
	}
	return views
}

// QueuedIn returns the snapshot of the bucket userID waits in.
func (m *Manager) QueuedIn(userID string) (QueueView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.byUser[userID]
	if !ok {
		return QueueView{}, false
	}
	return q.view(), true
}
