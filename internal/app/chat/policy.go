package chat

import (
	"context"

	"groupmatch/internal/app/room"
	"groupmatch/internal/pkg/errs"
)

// Policy authorizes client events before they reach the core.
type Policy interface {
	// CheckSession verifies the event's user descriptor belongs to the sending session.
	CheckSession(sessionID string, actor UserPayload) error

	// CheckChat verifies actor may post to roomName.
	CheckChat(ctx context.Context, actor UserPayload, roomName string) error

	// CheckKick verifies actor may remove target from roomName.
	CheckKick(ctx context.Context, actor, target UserPayload, roomName string) error
}

// MembershipPolicy admits chat and kicks from room members only.
type MembershipPolicy struct {
	rooms *room.Registry

	// kickRequiresHost restricts kicks to the room host.
	kickRequiresHost bool
}

// NewMembershipPolicy creates a MembershipPolicy over the room registry.
func NewMembershipPolicy(rooms *room.Registry, kickRequiresHost bool) *MembershipPolicy {
	return &MembershipPolicy{rooms: rooms, kickRequiresHost: kickRequiresHost}
}

// CheckSession rejects frames whose actor claims a session other than the connection's.
func (p *MembershipPolicy) CheckSession(sessionID string, actor UserPayload) error {
	if actor.SessionID != sessionID {
		return errs.NewError(errs.ErrForbidden)
	}
	return nil
}

func (p *MembershipPolicy) memberRoom(ctx context.Context, actor UserPayload, roomName string) (room.Room, error) {
	rm, err := p.rooms.GetByName(ctx, roomName)
	if err != nil {
		return room.Room{}, err
	}
	if !rm.Has(actor.UserID) {
		return room.Room{}, errs.NewError(errs.ErrForbidden)
	}
	return rm, nil
}

// CheckChat allows chat only from a member of roomName.
func (p *MembershipPolicy) CheckChat(ctx context.Context, actor UserPayload, roomName string) error {
	_, err := p.memberRoom(ctx, actor, roomName)
	return err
}

// CheckKick requires the actor to be a member, or the host when configured, and the
// target to be a member of roomName.
func (p *MembershipPolicy) CheckKick(ctx context.Context, actor, target UserPayload, roomName string) error {
	rm, err := p.memberRoom(ctx, actor, roomName)
	if err != nil {
		return err
	}
	if p.kickRequiresHost && rm.Host.ID != actor.UserID {
		return errs.NewError(errs.ErrForbidden)
	}
	if !rm.Has(target.UserID) {
		return errs.NewError(errs.ErrUserNotFound)
	}
	return nil
}
