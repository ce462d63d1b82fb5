/*
Package wsclient is a Go client for the matchmaking websocket protocol.

Requests carry a frame id and block until the matching ack or error frame arrives or the
context ends. Server pushes (room_name, chat, kick_user) are delivered on Events.
*/
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"groupmatch/internal/app/chat"
	"groupmatch/internal/app/matchmaking"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/randx"
)

const (
	// JoinTimeout bounds how long JoinRoom waits for the join ack.
	JoinTimeout = 30 * time.Second

	// leaveTimeout bounds the best-effort leave_queue sent after a join timeout.
	leaveTimeout = 5 * time.Second

	eventsBuffer = 64
)

var (
	// ErrAckTimeout is returned when no ack arrived before the deadline.
	ErrAckTimeout = errors.New("wsclient: ack timeout")

	// ErrClosed is returned once the connection is gone.
	ErrClosed = errors.New("wsclient: connection closed")
)

// Client is one websocket session.
type Client struct {
	// SessionID is assigned by the server on connect.
	SessionID string

	// JoinTimeout overrides the default join ack deadline when positive.
	JoinTimeout time.Duration

	conn *websocket.Conn

	// writeMu serializes writes; gorilla connections allow one concurrent writer.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan chat.Frame

	nextID atomic.Uint64
	events chan chat.Frame
	done   chan struct{}

	logger zerolog.Logger
}

// Dial connects to url and waits for the connected frame.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var hello chat.Frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connected frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if hello.Event != chat.EventConnected {
		conn.Close()
		return nil, fmt.Errorf("unexpected first event %q", hello.Event)
	}

	var p chat.ConnectedPayload
	if err := json.Unmarshal(hello.Data, &p); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode connected frame: %w", err)
	}

	c := &Client{
		SessionID: p.SessionID,
		conn:      conn,
		pending:   make(map[string]chan chat.Frame),
		events:    make(chan chat.Frame, eventsBuffer),
		done:      make(chan struct{}),
		logger:    logx.Component("wsclient").With().Str("session_id", p.SessionID).Logger(),
	}

	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		close(c.events)
	}()

	for {
		var f chat.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.logger.Debug().Err(err).Msg("Read loop finished.")
			return
		}

		if (f.Event == chat.EventAck || f.Event == chat.EventError) && f.ID != "" {
			c.pendingMu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.pendingMu.Unlock()

			if ok {
				ch <- f
				continue
			}
		}

		select {
		case c.events <- f:
		default:
			c.logger.Warn().Str("event", string(f.Event)).Msg("Events buffer full, dropping frame.")
		}
	}
}

// Events returns server pushes. The channel closes with the connection.
func (c *Client) Events() <-chan chat.Frame {
	return c.events
}

// Emit sends event with data and waits for its ack. An error frame is returned as a
// *errs.CustomError.
func (c *Client) Emit(ctx context.Context, event chat.EventType, data any) (json.RawMessage, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)

	frame, err := chat.EncodeFrame(event, id, data)
	if err != nil {
		return nil, err
	}

	reply := make(chan chat.Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return nil, fmt.Errorf("write %s: %w", event, err)
	}

	select {
	case f := <-reply:
		if f.Event == chat.EventError {
			var customErr errs.CustomError
			if err := json.Unmarshal(f.Data, &customErr); err != nil {
				return nil, fmt.Errorf("decode error frame: %w", err)
			}
			return nil, &customErr
		}
		return f.Data, nil

	case <-ctx.Done():
		forget()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrAckTimeout
		}
		return nil, ctx.Err()

	case <-c.done:
		return nil, ErrClosed
	}
}

// User builds the descriptor of this session for a display name. An empty userID is
// derived from the name and the current time.
func (c *Client) User(userID, userName, email string) chat.UserPayload {
	if userID == "" {
		userID = randx.UserID(userName, time.Now())
	}
	return chat.UserPayload{UserID: userID, UserName: userName, Email: email, SessionID: c.SessionID}
}

// JoinRoom requests a seat and waits up to JoinTimeout for the ack. On timeout the
// queued request is withdrawn once, without retry.
func (c *Client) JoinRoom(ctx context.Context, p chat.JoinRoomPayload) (matchmaking.Outcome, error) {
	timeout := c.JoinTimeout
	if timeout <= 0 {
		timeout = JoinTimeout
	}

	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := c.Emit(joinCtx, chat.EventJoinRoom, p)
	if errors.Is(err, ErrAckTimeout) {
		c.logger.Warn().Dur("timeout", timeout).Msg("Join ack timed out. Leaving the queue.")

		leaveCtx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancelLeave()
		if leaveErr := c.LeaveQueue(leaveCtx, p.User); leaveErr != nil {
			c.logger.Debug().Err(leaveErr).Msg("Best-effort leave after join timeout failed.")
		}
		return matchmaking.Outcome{}, err
	}
	if err != nil {
		return matchmaking.Outcome{}, err
	}

	var out matchmaking.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return matchmaking.Outcome{}, fmt.Errorf("decode join ack: %w", err)
	}
	return out, nil
}

// Chat sends a message and waits for the delivery ack.
func (c *Client) Chat(ctx context.Context, msg chat.ChatMessage) (chat.ChatAck, error) {
	data, err := c.Emit(ctx, chat.EventChat, msg)
	if err != nil {
		return chat.ChatAck{}, err
	}

	var ack chat.ChatAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return chat.ChatAck{}, fmt.Errorf("decode chat ack: %w", err)
	}
	return ack, nil
}

// Kick removes target from roomName.
func (c *Client) Kick(ctx context.Context, actor, target chat.UserPayload, roomName string) error {
	_, err := c.Emit(ctx, chat.EventKickUser, chat.KickUserPayload{User: actor, UserToKick: target, RoomName: roomName})
	return err
}

// LeaveQueue withdraws the outstanding join request of u.
func (c *Client) LeaveQueue(ctx context.Context, u chat.UserPayload) error {
	_, err := c.Emit(ctx, chat.EventLeaveQueue, chat.LeaveQueuePayload{User: u})
	return err
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}
