package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"groupmatch/internal/app/user"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
)

// Kicker removes a member from a room and detaches its session.
type Kicker interface {
	Kick(ctx context.Context, roomName, targetID string) error
}

// Router relays chat messages and kick notifications to room groups.
type Router struct {
	hub    *Hub
	kicker Kicker

	// now stamps system messages.
	now func() time.Time

	logger zerolog.Logger
}

// NewRouter creates a Router broadcasting through hub.
func NewRouter(hub *Hub, kicker Kicker) *Router {
	return &Router{
		hub:    hub,
		kicker: kicker,
		now:    time.Now,
		logger: logx.Component("ChatRouter"),
	}
}

// RelayMessage broadcasts msg unchanged to every session bound to msg.RoomName, the
// sender's included, and returns the ack for the sender.
func (r *Router) RelayMessage(ctx context.Context, msg ChatMessage) (ChatAck, error) {
	frame, err := EncodeFrame(EventChat, "", msg)
	if err != nil {
		return ChatAck{}, err
	}

	delivered := r.hub.Broadcast(msg.RoomName, frame)

	r.logger.Debug().
		Str("room", msg.RoomName).
		Str("user_id", msg.User.UserID).
		Int64("time_sent", msg.TimeSent).
		Int("recipients", delivered).
		Msg("Chat message relayed.")

	return ChatAck{UserID: msg.User.UserID, TimeSent: msg.TimeSent, Delivered: delivered > 0}, nil
}

// KickUser fans the kick out to the room, evicts the target and announces the removal
// with a system chat message. Authorization happens before this call.
func (r *Router) KickUser(ctx context.Context, actor, target UserPayload, roomName string) error {
	kickFrame, err := EncodeFrame(EventKickUser, "", KickUserPayload{User: actor, UserToKick: target, RoomName: roomName})
	if err != nil {
		return err
	}
	r.hub.Broadcast(roomName, kickFrame)

	if err := r.kicker.Kick(ctx, roomName, target.UserID); err != nil {
		if !errs.HasCode(err, errs.ErrUserNotFound) {
			return err
		}
		r.logger.Warn().Str("room", roomName).Str("user_id", target.UserID).Msg("Kick target already left the room.")
	}

	notice := ChatMessage{
		User:     PayloadOf(user.System),
		TimeSent: r.now().UnixMilli(),
		Message:  target.UserName + " was kicked.",
		RoomName: roomName,
	}
	noticeFrame, err := EncodeFrame(EventChat, "", notice)
	if err != nil {
		return err
	}
	r.hub.Broadcast(roomName, noticeFrame)

	r.logger.Info().Str("room", roomName).Str("actor", actor.UserID).Str("target", target.UserID).Msg("User kicked from room.")
	return nil
}
