package matchmaking

import (
	"slices"

	"groupmatch/internal/app/user"
)

// Queue is a bucket of users waiting for a group of Size to fill.
type Queue struct {
	// ID is the creation sequence number; lower ids were created first.
	ID uint64

	// Size is the target member count.
	Size int

	// LastSessionID is the session of the most recent joiner.
	LastSessionID string

	// members are kept in arrival order.
	members []user.User
}

// QueueView is a read-only snapshot of a Queue.
type QueueView struct {
	ID      uint64   `json:"id"`
	Size    int      `json:"size"`
	UserIDs []string `json:"userIds"`
}

func newQueue(id uint64, size int) *Queue {
	return &Queue{ID: id, Size: size, members: make([]user.User, 0, size)}
}

// Len returns the number of waiting members.
func (q *Queue) Len() int { return len(q.members) }

// Full reports whether the bucket reached its target size.
func (q *Queue) Full() bool { return len(q.members) >= q.Size }

func (q *Queue) add(u user.User) {
	q.members = append(q.members, u)
	q.LastSessionID = u.SessionID
}

// remove drops userID and reports whether it was present.
func (q *Queue) remove(userID string) bool {
	i := slices.IndexFunc(q.members, func(u user.User) bool { return u.ID == userID })
	if i < 0 {
		return false
	}
	q.members = slices.Delete(q.members, i, i+1)
	return true
}

func (q *Queue) view() QueueView {
	ids := make([]string, len(q.members))
	for i, m := range q.members {
		ids[i] = m.ID
	}
	return QueueView{ID: q.ID, Size: q.Size, UserIDs: ids}
}
