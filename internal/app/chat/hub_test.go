package chat

import (
	"encoding/json"
	"testing"
	"time"

	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
)

// newTestClient builds a client without a websocket connection.
func newTestClient(hub *Hub, id string, buffer int) *Client {
	return &Client{
		ID:     id,
		hub:    hub,
		send:   make(chan []byte, buffer),
		logger: logx.Component("test-client"),
	}
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		if !ok {
			t.Fatalf("Expected a frame for %s, send channel closed", c.ID)
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("Expected a frame for %s, got none", c.ID)
	}
	return Frame{}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()

	select {
	case raw := <-c.send:
		t.Errorf("Expected no frame for %s, got %s", c.ID, raw)
	default:
	}
}

func registered(hub *Hub, id string) *Client {
	c := newTestClient(hub, id, 32)
	hub.Register(c)
	<-c.send // connected
	return c
}

func TestHub_RegisterSendsSessionID(t *testing.T) {
	hub := NewHub(0)
	c := newTestClient(hub, "s1", 4)

	hub.Register(c)

	f := readFrame(t, c)
	if f.Event != EventConnected {
		t.Fatalf("Expected connected event, got %s", f.Event)
	}
	var p ConnectedPayload
	_ = json.Unmarshal(f.Data, &p)
	if p.SessionID != "s1" {
		t.Errorf("Expected session s1, got %s", p.SessionID)
	}
	if !hub.IsLive("s1") {
		t.Error("Expected s1 to be live")
	}
}

func TestHub_Bind(t *testing.T) {
	hub := NewHub(0)

	if err := hub.Bind("ghost", "lobby"); !errs.HasCode(err, errs.ErrSessionNotLive) {
		t.Fatalf("Expected ErrSessionNotLive, got %v", err)
	}

	c := registered(hub, "s1")
	if err := hub.Bind("s1", "lobby"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	f := readFrame(t, c)
	if f.Event != EventRoomName {
		t.Fatalf("Expected room_name event, got %s", f.Event)
	}
	var p RoomNamePayload
	_ = json.Unmarshal(f.Data, &p)
	if p.RoomName != "lobby" {
		t.Errorf("Expected lobby, got %s", p.RoomName)
	}

	if members := hub.GroupMembers("lobby"); len(members) != 1 || members[0] != "s1" {
		t.Errorf("Expected group [s1], got %v", members)
	}
}

func TestHub_BroadcastReachesGroupOnly(t *testing.T) {
	hub := NewHub(0)
	a := registered(hub, "a")
	b := registered(hub, "b")
	outsider := registered(hub, "c")

	_ = hub.Bind("a", "lobby")
	_ = hub.Bind("b", "lobby")
	<-a.send
	<-b.send

	n := hub.Broadcast("lobby", []byte(`{"event":"chat"}`))
	if n != 2 {
		t.Errorf("Expected 2 recipients, got %d", n)
	}

	readFrame(t, a)
	readFrame(t, b)
	expectNoFrame(t, outsider)

	if err := hub.Unbind("b", "lobby"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if n := hub.Broadcast("lobby", []byte(`{"event":"chat"}`)); n != 1 {
		t.Errorf("Expected 1 recipient after unbind, got %d", n)
	}
	expectNoFrame(t, b)
}

func TestHub_UnregisterReportsDisconnect(t *testing.T) {
	hub := NewHub(0)
	gone := make(chan string, 1)
	hub.OnDisconnect(func(sessionID string) { gone <- sessionID })

	go hub.Run()
	defer hub.Stop()

	c := registered(hub, "s1")
	_ = hub.Bind("s1", "lobby")
	<-c.send

	hub.Unregister(c)

	select {
	case id := <-gone:
		if id != "s1" {
			t.Errorf("Expected s1 to disconnect, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected disconnect callback")
	}

	if hub.IsLive("s1") {
		t.Error("Expected s1 to be gone")
	}
	if len(hub.GroupMembers("lobby")) != 0 {
		t.Error("Expected s1 to leave its groups")
	}
	if _, ok := <-c.send; ok {
		t.Error("Expected send channel to be closed")
	}
	if c.Send([]byte("late")) {
		t.Error("Expected Send on a closed client to fail")
	}
}

func TestHub_StaleUnregisterIgnored(t *testing.T) {
	hub := NewHub(0)
	calls := 0
	hub.OnDisconnect(func(string) { calls++ })

	old := registered(hub, "s1")
	replacement := registered(hub, "s1")

	hub.remove(old)

	if !hub.IsLive("s1") || calls != 0 {
		t.Errorf("Expected replacement to stay live, live=%v calls=%d", hub.IsLive("s1"), calls)
	}

	hub.remove(replacement)
	if hub.IsLive("s1") || calls != 1 {
		t.Errorf("Expected replacement removal to disconnect, live=%v calls=%d", hub.IsLive("s1"), calls)
	}
}

func TestHub_FullClientIsDropped(t *testing.T) {
	hub := NewHub(0)
	c := newTestClient(hub, "slow", 1)
	hub.Register(c) // fills the buffer with the connected frame

	hub.mu.Lock()
	hub.groups["lobby"] = map[string]*Client{"slow": c}
	hub.mu.Unlock()

	if n := hub.Broadcast("lobby", []byte("x")); n != 0 {
		t.Errorf("Expected no delivery to a full client, got %d", n)
	}

	select {
	case queued := <-hub.unregister:
		if queued != c {
			t.Error("Expected the slow client to be queued for removal")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected the slow client to be unregistered")
	}
}

func TestHub_SendTo(t *testing.T) {
	hub := NewHub(0)
	c := registered(hub, "s1")

	if err := hub.SendTo("s1", []byte(`{"event":"ack"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	readFrame(t, c)

	if err := hub.SendTo("nobody", []byte("x")); !errs.HasCode(err, errs.ErrSessionNotLive) {
		t.Errorf("Expected ErrSessionNotLive, got %v", err)
	}
}
