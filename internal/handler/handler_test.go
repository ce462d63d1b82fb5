package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupmatch/internal/app/chat"
	"groupmatch/internal/app/matchmaking"
	"groupmatch/internal/app/room"
	"groupmatch/internal/app/store"
	"groupmatch/internal/app/user"
	"groupmatch/internal/app/wsclient"
	"groupmatch/internal/configs"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/resp"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:    "development",
		UpgradeRate:    100,
		UpgradeBurst:   100,
		ChatLimit:      10,
		ChatWindow:     30 * time.Second,
		JoinLimit:      5,
		JoinWindow:     time.Minute,
		EventTimeout:   5 * time.Second,
		MaxMessageSize: 8192,
	}

	rooms := room.NewRegistry(store.NewMemory[room.Room](), store.NewMemory[string]())
	users := user.NewDirectory(store.NewMemory[user.User](), store.NewMemory[string]())
	hub := chat.NewHub(cfg.MaxMessageSize)
	manager := matchmaking.NewManager(users, rooms, hub)
	gateway := chat.NewGateway(manager, chat.NewRouter(hub, manager), chat.NewMembershipPolicy(rooms, false), chat.GatewayConfig{
		ChatLimit:    cfg.ChatLimit,
		ChatWindow:   cfg.ChatWindow,
		JoinLimit:    cfg.JoinLimit,
		JoinWindow:   cfg.JoinWindow,
		EventTimeout: cfg.EventTimeout,
	})
	hub.OnDisconnect(gateway.Disconnected)
	go hub.Run()

	srv := httptest.NewServer(Router(&AppDeps{
		Config:  cfg,
		Hub:     hub,
		Gateway: gateway,
		Manager: manager,
		Rooms:   rooms,
	}))

	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
		gateway.Stop()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *wsclient.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := wsclient.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitEvent(t *testing.T, c *wsclient.Client, event chat.EventType) chat.Frame {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-c.Events():
			if !ok {
				t.Fatalf("Expected %s, connection closed", event)
			}
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("Expected %s event in time", event)
		}
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func getJSON(t *testing.T, srv *httptest.Server, path string) (int, envelope) {
	t.Helper()

	res, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return res.StatusCode, env
}

func roomView(t *testing.T, srv *httptest.Server, path string) room.View {
	t.Helper()

	status, env := getJSON(t, srv, path)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 for %s, got %d (%s)", path, status, env.Message)
	}
	var v room.View
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	status, env := getJSON(t, srv, "/health")
	if status != http.StatusOK || env.Code != 0 {
		t.Errorf("Expected healthy response, got %d %+v", status, env)
	}
}

func TestRooms_NotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/rooms/nowhere", "/api/rooms/by/nobody"} {
		status, env := getJSON(t, srv, path)
		if status != http.StatusNotFound || env.Code != errs.ErrRoomNotFound {
			t.Errorf("Expected 404/%d for %s, got %d/%d", errs.ErrRoomNotFound, path, status, env.Code)
		}
	}

	status, env := getJSON(t, srv, "/api/rooms")
	var rooms []room.View
	_ = json.Unmarshal(env.Data, &rooms)
	if status != http.StatusOK || len(rooms) != 0 {
		t.Errorf("Expected an empty room list, got %d %s", status, env.Data)
	}
}

func TestEndToEnd_MatchChatKickDisconnect(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	alice := dial(t, srv)
	bob := dial(t, srv)
	aliceUser := alice.User("alice-id", "alice", "alice@example.com")
	bobUser := bob.User("", "bob", "bob@example.com")

	out, err := alice.JoinRoom(ctx, chat.JoinRoomPayload{User: aliceUser, RoomName: "r1", MembersNumber: 2})
	if err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if out.Status != matchmaking.StatusWaiting {
		t.Fatalf("Expected waiting, got %s", out.Status)
	}

	_, env := getJSON(t, srv, "/api/queues")
	var queues []matchmaking.QueueView
	_ = json.Unmarshal(env.Data, &queues)
	if len(queues) != 1 || queues[0].UserIDs[0] != aliceUser.UserID {
		t.Errorf("Expected alice waiting in one bucket, got %s", env.Data)
	}

	out, err = bob.JoinRoom(ctx, chat.JoinRoomPayload{User: bobUser, RoomName: "r1", MembersNumber: 2})
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if out.Status != matchmaking.StatusMatched || out.RoomName != "r1" {
		t.Fatalf("Expected matched into r1, got %+v", out)
	}

	waitEvent(t, alice, chat.EventRoomName)
	waitEvent(t, bob, chat.EventRoomName)

	v := roomView(t, srv, "/api/rooms/r1")
	if len(v.Users) != 2 || v.Host.ID != aliceUser.UserID {
		t.Errorf("Expected r1 hosted by alice with 2 users, got %+v", v)
	}
	if v := roomView(t, srv, "/api/rooms/by/"+bobUser.UserID); v.Name != "r1" {
		t.Errorf("Expected bob's room to be r1, got %s", v.Name)
	}

	ack, err := alice.Chat(ctx, chat.ChatMessage{User: aliceUser, TimeSent: 42, Message: "hi bob", RoomName: "r1"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !ack.Delivered || ack.UserID != aliceUser.UserID || ack.TimeSent != 42 {
		t.Errorf("Expected correlated delivery ack, got %+v", ack)
	}

	f := waitEvent(t, bob, chat.EventChat)
	var msg chat.ChatMessage
	_ = json.Unmarshal(f.Data, &msg)
	if msg.Message != "hi bob" || msg.User.UserID != aliceUser.UserID {
		t.Errorf("Expected bob to receive alice's message, got %+v", msg)
	}

	if err := alice.Kick(ctx, aliceUser, bobUser, "r1"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	waitEvent(t, bob, chat.EventKickUser)

	f = waitEvent(t, alice, chat.EventChat)
	for {
		_ = json.Unmarshal(f.Data, &msg)
		if msg.User.UserID == user.System.ID {
			break
		}
		f = waitEvent(t, alice, chat.EventChat)
	}
	if msg.Message != "bob was kicked." {
		t.Errorf("Expected kick notice, got %q", msg.Message)
	}

	if v := roomView(t, srv, "/api/rooms/r1"); len(v.Users) != 1 {
		t.Errorf("Expected r1 to keep only alice, got %+v", v.Users)
	}

	_, err = bob.Chat(ctx, chat.ChatMessage{User: bobUser, TimeSent: 43, Message: "still here?", RoomName: "r1"})
	if !errs.HasCode(err, errs.ErrForbidden) {
		t.Errorf("Expected kicked user to be forbidden, got %v", err)
	}

	if err := alice.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, _ := getJSON(t, srv, "/api/rooms/r1")
		if status == http.StatusNotFound {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected r1 to be pruned after its last member disconnected")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEndToEnd_AlreadyQueuedAndLeave(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	c := dial(t, srv)
	u := c.User("", "carol", "carol@example.com")

	for i, want := range []matchmaking.Status{matchmaking.StatusWaiting, matchmaking.StatusAlreadyQueued} {
		out, err := c.JoinRoom(ctx, chat.JoinRoomPayload{User: u, MembersNumber: 3})
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if out.Status != want {
			t.Errorf("Expected %s on join %d, got %s", want, i, out.Status)
		}
	}

	if err := c.LeaveQueue(ctx, u); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := c.LeaveQueue(ctx, u); !errs.HasCode(err, errs.ErrNotQueued) {
		t.Errorf("Expected ErrNotQueued, got %v", err)
	}
}

func TestRespondEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	resp.RespondError(rec, req, errs.NewError(errs.ErrRateLimitExceeded))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":1007`) {
		t.Errorf("Expected error code in body, got %s", rec.Body.String())
	}
}
