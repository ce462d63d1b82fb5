package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
)

const unregisterBuffer = 256

// Hub tracks live sessions and mirrors room membership onto broadcast groups.
// It never decides membership itself; the room registry does.
type Hub struct {
	// mu protects clients and groups.
	mu sync.RWMutex

	// clients are the live sessions keyed by session id.
	clients map[string]*Client

	// groups maps a room name to the sessions bound to it.
	groups map[string]map[string]*Client

	// unregister queues closed clients for the Run loop.
	unregister chan *Client

	// onDisconnect runs on the Run loop after a session is gone.
	onDisconnect func(sessionID string)

	maxMessageSize int64

	stop     chan struct{}
	stopOnce sync.Once

	logger zerolog.Logger
}

// NewHub creates a Hub. maxMessageSize bounds inbound frames; zero uses the default.
func NewHub(maxMessageSize int64) *Hub {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	return &Hub{
		clients:        make(map[string]*Client),
		groups:         make(map[string]map[string]*Client),
		unregister:     make(chan *Client, unregisterBuffer),
		maxMessageSize: maxMessageSize,
		stop:           make(chan struct{}),
		logger:         logx.Component("Hub"),
	}
}

// OnDisconnect sets the callback invoked, one session at a time, when a session closes.
// It must be set before Run.
func (h *Hub) OnDisconnect(fn func(sessionID string)) {
	h.onDisconnect = fn
}

// Run processes disconnects until Stop is called.
func (h *Hub) Run() {
	h.logger.Info().Msg("Hub loop started.")

	for {
		select {
		case c := <-h.unregister:
			h.remove(c)

		case <-h.stop:
			h.closeAll()
			h.logger.Info().Msg("Hub loop stopped.")
			return
		}
	}
}

// Stop ends the Run loop and closes every live session.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register makes c live and sends it its session id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("session_id", c.ID).Int("total_sessions", total).Msg("Session registered.")

	if err := c.SendEvent(EventConnected, "", ConnectedPayload{SessionID: c.ID}); err != nil {
		h.logger.Warn().Err(err).Str("session_id", c.ID).Msg("Failed to send connected event.")
	}
}

// Unregister queues c for removal. It never blocks the caller.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	default:
		h.logger.Warn().Str("session_id", c.ID).Msg("Unregister queue full. Deferring removal.")
		go func() {
			select {
			case h.unregister <- c:
			case <-h.stop:
			}
		}()
	}
}

// remove drops c from every group and reports the disconnect. Replaced or unknown
// clients are ignored.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID]
	if !ok || current != c {
		h.mu.Unlock()
		h.logger.Debug().Str("session_id", c.ID).Msg("Ignoring unregister for unknown session.")
		return
	}

	delete(h.clients, c.ID)
	for name, group := range h.groups {
		delete(group, c.ID)
		if len(group) == 0 {
			delete(h.groups, name)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.closeSend()

	h.logger.Info().Str("session_id", c.ID).Int("total_sessions", total).Msg("Session unregistered.")

	if h.onDisconnect != nil {
		h.onDisconnect(c.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.groups = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
}

// Bind attaches a live session to the room's group and sends it a room_name event.
// A session that is not live yields ErrSessionNotLive.
func (h *Hub) Bind(sessionID, roomName string) error {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	if !ok {
		h.mu.Unlock()
		h.logger.Warn().Str("session_id", sessionID).Str("room", roomName).Msg("Bind skipped. Session is not live.")
		return errs.NewError(errs.ErrSessionNotLive)
	}

	group, ok := h.groups[roomName]
	if !ok {
		group = make(map[string]*Client)
		h.groups[roomName] = group
	}
	group[sessionID] = c
	h.mu.Unlock()

	if err := c.SendEvent(EventRoomName, "", RoomNamePayload{RoomName: roomName}); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Str("room", roomName).Msg("Failed to notify bound session.")
		return errs.NewError(errs.ErrSessionNotLive)
	}

	h.logger.Debug().Str("session_id", sessionID).Str("room", roomName).Msg("Session bound to room.")
	return nil
}

// Unbind detaches a session from the room's group.
func (h *Hub) Unbind(sessionID, roomName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[sessionID]; !ok {
		return errs.NewError(errs.ErrSessionNotLive)
	}

	if group, ok := h.groups[roomName]; ok {
		delete(group, sessionID)
		if len(group) == 0 {
			delete(h.groups, roomName)
		}
	}

	h.logger.Debug().Str("session_id", sessionID).Str("room", roomName).Msg("Session unbound from room.")
	return nil
}

// Broadcast queues frame for every session bound to roomName and returns how many
// sessions accepted it. Sessions whose queue is full are disconnected.
func (h *Hub) Broadcast(roomName string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[roomName]))
	for _, c := range h.groups[roomName] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			continue
		}
		h.logger.Warn().Str("session_id", c.ID).Str("room", roomName).Msg("Client send queue full or closed. Unregistering.")
		h.Unregister(c)
	}
	return delivered
}

// SendTo queues frame for a single session.
func (h *Hub) SendTo(sessionID string, frame []byte) error {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()

	if !ok || !c.Send(frame) {
		return errs.NewError(errs.ErrSessionNotLive)
	}
	return nil
}

// IsLive reports whether sessionID is connected.
func (h *Hub) IsLive(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[sessionID]
	return ok
}

// GroupMembers returns the session ids bound to roomName, sorted.
func (h *Hub) GroupMembers(roomName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.groups[roomName]))
	for id := range h.groups[roomName] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
