/*
Package chat is the realtime side of the server: websocket clients, the hub that groups
live sessions by room, the router that relays chat and kick events, and the gateway that
decodes, authorizes and dispatches inbound frames.

This file defines the wire frames and event payloads.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"groupmatch/internal/app/user"
)

// EventType names a websocket event.
type EventType string

const (
	// EventConnected is sent once after the upgrade with the session id.
	EventConnected EventType = "connected"

	// EventJoinRoom requests a seat in a group.
	EventJoinRoom EventType = "join_room"

	// EventRoomName tells a session which room it was bound to.
	EventRoomName EventType = "room_name"

	// EventChat carries a chat message in both directions.
	EventChat EventType = "chat"

	// EventKickUser removes a member from a room and is fanned out to the room.
	EventKickUser EventType = "kick_user"

	// EventLeaveQueue withdraws an outstanding join request.
	EventLeaveQueue EventType = "leave_queue"

	// EventAck acknowledges the client frame carrying the same id.
	EventAck EventType = "ack"

	// EventError rejects the client frame carrying the same id.
	EventError EventType = "error"
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Event EventType `json:"event"`

	// ID correlates a client request with its ack or error. Server pushes leave it empty.
	ID string `json:"id,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals data into a frame for event.
func EncodeFrame(event EventType, id string, data any) ([]byte, error) {
	f := Frame{Event: event, ID: id}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", event, err)
		}
		f.Data = raw
	}

	return json.Marshal(f)
}

// UserPayload is the user descriptor carried by client events.
type UserPayload struct {
	UserID    string `json:"userId" validate:"required,min=1,max=100"`
	UserName  string `json:"userName" validate:"required,min=1,max=16"`
	Email     string `json:"email" validate:"required,max=30,email"`
	SessionID string `json:"sessionId" validate:"required"`
}

// User converts the payload into a directory user.
func (p UserPayload) User() user.User {
	return user.User{ID: p.UserID, Name: p.UserName, Email: p.Email, SessionID: p.SessionID}
}

// PayloadOf converts a directory user into its wire form.
func PayloadOf(u user.User) UserPayload {
	return UserPayload{UserID: u.ID, UserName: u.Name, Email: u.Email, SessionID: u.SessionID}
}

// GroupSize accepts both a JSON number and a numeric string, as browsers send form values.
type GroupSize int

// UnmarshalJSON implements json.Unmarshaler.
func (g *GroupSize) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if len(s) == 0 || len(s) > 2 {
			return fmt.Errorf("group size %q must have 1 or 2 digits", s)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("group size %q: %w", s, err)
		}
		*g = GroupSize(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*g = GroupSize(n)
	return nil
}

// JoinRoomPayload is the data of a join_room frame. An empty RoomName lets the server
// pick one.
type JoinRoomPayload struct {
	User          UserPayload `json:"user"`
	RoomName      string      `json:"roomName" validate:"omitempty,min=2,max=16,roomname"`
	MembersNumber GroupSize   `json:"membersNumber" validate:"min=2,max=9"`
}

// ChatMessage is the data of a chat frame.
type ChatMessage struct {
	User UserPayload `json:"user"`

	// TimeSent is the sender's unix time in milliseconds. Together with the user id it
	// correlates the delivery ack with the sender's local echo.
	TimeSent int64 `json:"timeSent"`

	Message  string `json:"message" validate:"required,min=1,max=1000"`
	RoomName string `json:"roomName" validate:"required,min=2,max=16,roomname"`
}

// KickUserPayload is the data of a kick_user frame.
type KickUserPayload struct {
	User       UserPayload `json:"user"`
	UserToKick UserPayload `json:"userToKick"`
	RoomName   string      `json:"roomName" validate:"required,min=2,max=16,roomname"`
}

// LeaveQueuePayload is the data of a leave_queue frame.
type LeaveQueuePayload struct {
	User UserPayload `json:"user"`
}

// RoomNamePayload is the data of a room_name frame.
type RoomNamePayload struct {
	RoomName string `json:"roomName"`
}

// ConnectedPayload is the data of the connected frame.
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
}

// ChatAck acknowledges a relayed chat message.
type ChatAck struct {
	UserID    string `json:"userId"`
	TimeSent  int64  `json:"timeSent"`
	Delivered bool   `json:"delivered"`
}
