package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// default maximum size (in bytes) of a frame sent by the client.
	defaultMaxMessageSize = 8192

	sendBuffer = 256
)

// FrameHandler processes inbound frames of one client. Calls for the same client never
// overlap.
type FrameHandler interface {
	HandleFrame(c *Client, raw []byte)
}

// Client is one live websocket session.
type Client struct {
	// ID is the session id, fresh for every connection.
	ID string

	hub     *Hub
	conn    *websocket.Conn
	handler FrameHandler

	// send queues outbound frames for WritePump.
	send chan []byte

	// mu guards closed so nothing is queued after send is closed.
	mu     sync.Mutex
	closed bool

	logger zerolog.Logger
}

// NewClient constructs a Client with a fresh session id.
func NewClient(hub *Hub, conn *websocket.Conn, handler FrameHandler) *Client {
	id := randx.SessionID()

	return &Client{
		ID:      id,
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBuffer),
		logger:  logx.Logger().With().Str("session_id", id).Logger(),
	}
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(c.hub.maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.handler.HandleFrame(c, raw)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames and periodic pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// Send queues frame without blocking. It returns false when the queue is full or the
// client is closed.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// closeSend closes the send queue once; WritePump then sends a close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendEvent encodes and queues a frame.
func (c *Client) SendEvent(event EventType, id string, data any) error {
	frame, err := EncodeFrame(event, id, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(event)).Msg("Error marshaling frame for client")
		return err
	}

	if !c.Send(frame) {
		return fmt.Errorf("client %s send queue unavailable", c.ID)
	}
	return nil
}

// SendAck acknowledges the request frame id with data.
func (c *Client) SendAck(id string, data any) {
	if err := c.SendEvent(EventAck, id, data); err != nil {
		c.logger.Warn().Err(err).Str("frame_id", id).Msg("Failed to queue ack")
	}
}

// SendError rejects the request frame id. Errors that are not a CustomError are reported
// as ErrUnknown.
func (c *Client) SendError(id string, err error) {
	customErr := errs.From(err)

	if sendErr := c.SendEvent(EventError, id, customErr); sendErr != nil {
		c.logger.Warn().Err(sendErr).Int("code", customErr.Code).Msg("Failed to queue error frame")
	}
}

// decodeFrame parses the envelope of an inbound frame.
func decodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return f, nil
}
