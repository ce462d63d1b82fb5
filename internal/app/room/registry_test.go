package room

import (
	"context"
	"errors"
	"testing"

	"groupmatch/internal/app/store"
	"groupmatch/internal/app/user"
	"groupmatch/internal/pkg/errs"
)

func newTestRegistry() *Registry {
	return NewRegistry(store.NewMemory[Room](), store.NewMemory[string]())
}

func testUser(id string) user.User {
	return user.User{ID: id, Name: "name-" + id, Email: id + "@example.com", SessionID: "s-" + id}
}

func TestRegistry_CreateOrExtendRoom(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	rm, err := r.CreateOrExtendRoom(ctx, "lobby", testUser("a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rm.Host.ID != "a" || rm.Len() != 1 {
		t.Errorf("Expected room hosted by a with one member, got %+v", rm)
	}

	rm, err = r.CreateOrExtendRoom(ctx, "lobby", testUser("b"))
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if rm.Host.ID != "a" {
		t.Errorf("Expected host to stay a, got %s", rm.Host.ID)
	}
	if rm.Len() != 2 {
		t.Errorf("Expected 2 members, got %d", rm.Len())
	}
}

func TestRegistry_CreateRoom(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	members := []user.User{testUser("a"), testUser("b"), testUser("c")}
	rm, err := r.CreateRoom(ctx, "trio", members[0], members)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rm.Len() != 3 {
		t.Fatalf("Expected 3 members, got %d", rm.Len())
	}

	for _, m := range members {
		got, err := r.GetByUserID(ctx, m.ID)
		if err != nil || got.Name != "trio" {
			t.Errorf("Expected %s in trio, got %+v err=%v", m.ID, got, err)
		}
	}

	if _, err := r.CreateRoom(ctx, "trio", testUser("d"), []user.User{testUser("d")}); !errs.HasCode(err, errs.ErrRoomExists) {
		t.Errorf("Expected ErrRoomExists, got %v", err)
	}
}

// failingStore fails Put for the keys in failOn.
type failingStore[T any] struct {
	store.Store[T]
	failOn map[string]bool
}

func (s *failingStore[T]) Put(ctx context.Context, key string, value T) error {
	if s.failOn[key] {
		return errors.New("store unavailable")
	}
	return s.Store.Put(ctx, key, value)
}

func TestRegistry_CreateRoomRollsBackIndex(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		rooms    map[string]bool
		memberOf map[string]bool
	}{
		{name: "room write fails", rooms: map[string]bool{"lobby": true}},
		{name: "index write fails midway", memberOf: map[string]bool{"c": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memberOf := store.NewMemory[string]()
			r := NewRegistry(
				&failingStore[Room]{Store: store.NewMemory[Room](), failOn: tt.rooms},
				&failingStore[string]{Store: memberOf, failOn: tt.memberOf},
			)

			a, b, c := testUser("a"), testUser("b"), testUser("c")
			if _, err := r.CreateRoom(ctx, "lobby", a, []user.User{a, b, c}); err == nil {
				t.Fatal("Expected CreateRoom to fail")
			}

			for _, id := range []string{"a", "b", "c"} {
				if _, ok, _ := memberOf.Get(ctx, id); ok {
					t.Errorf("Expected no index entry for %s", id)
				}
				if _, err := r.GetByUserID(ctx, id); !errs.HasCode(err, errs.ErrRoomNotFound) {
					t.Errorf("Expected %s in no room, got %v", id, err)
				}
				if left, err := r.RemoveUserFromAllRooms(ctx, id); err != nil || len(left) != 0 {
					t.Errorf("Expected nothing to remove for %s, got %v %v", id, left, err)
				}
			}
			if ok, err := r.Exists(ctx, "lobby"); err != nil || ok {
				t.Errorf("Expected lobby not to exist, got %v %v", ok, err)
			}
		})
	}
}

func TestRegistry_AddMemberIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, _ = r.CreateOrExtendRoom(ctx, "lobby", testUser("a"))

	for range 3 {
		if _, err := r.AddMember(ctx, "lobby", testUser("b")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	rm, err := r.GetByName(ctx, "lobby")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rm.Len() != 2 {
		t.Errorf("Expected duplicates to collapse to 2 members, got %d", rm.Len())
	}

	if _, err := r.AddMember(ctx, "missing", testUser("c")); !errs.HasCode(err, errs.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRegistry_AddMemberMovesUser(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, _ = r.CreateOrExtendRoom(ctx, "one", testUser("a"))
	_, _ = r.AddMember(ctx, "one", testUser("b"))
	_, _ = r.CreateOrExtendRoom(ctx, "two", testUser("c"))

	if _, err := r.AddMember(ctx, "two", testUser("b")); err != nil {
		t.Fatalf("move: %v", err)
	}

	one, _ := r.GetByName(ctx, "one")
	if one.Has("b") {
		t.Error("Expected b to have left room one")
	}

	got, err := r.GetByUserID(ctx, "b")
	if err != nil || got.Name != "two" {
		t.Errorf("Expected b in room two, got %+v err=%v", got, err)
	}
}

func TestRegistry_RemoveMember(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, _ = r.CreateRoom(ctx, "pair", testUser("a"), []user.User{testUser("a"), testUser("b")})

	tests := []struct {
		name     string
		room     string
		userID   string
		wantCode int
		wantLen  int
	}{
		{name: "unknown room", room: "nope", userID: "a", wantCode: errs.ErrRoomNotFound},
		{name: "not a member", room: "pair", userID: "z", wantCode: errs.ErrUserNotFound},
		{name: "member", room: "pair", userID: "b", wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, err := r.RemoveMember(ctx, tt.room, tt.userID)
			if tt.wantCode != 0 {
				if !errs.HasCode(err, tt.wantCode) {
					t.Errorf("Expected code %d, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("remove: %v", err)
			}
			if rm.Len() != tt.wantLen {
				t.Errorf("Expected %d members left, got %d", tt.wantLen, rm.Len())
			}
		})
	}

	if _, err := r.GetByUserID(ctx, "b"); !errs.HasCode(err, errs.ErrRoomNotFound) {
		t.Errorf("Expected b to be roomless, got %v", err)
	}
}

func TestRegistry_EmptyRoomIsPruned(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, _ = r.CreateRoom(ctx, "pair", testUser("a"), []user.User{testUser("a"), testUser("b")})

	if _, err := r.RemoveMember(ctx, "pair", "a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	rooms, err := r.RemoveUserFromAllRooms(ctx, "b")
	if err != nil {
		t.Fatalf("remove b: %v", err)
	}
	if len(rooms) != 1 || rooms[0] != "pair" {
		t.Errorf("Expected b to leave pair, got %v", rooms)
	}

	if _, err := r.GetByName(ctx, "pair"); !errs.HasCode(err, errs.ErrRoomNotFound) {
		t.Errorf("Expected empty room to be pruned, got %v", err)
	}

	all, _ := r.List(ctx)
	if len(all) != 0 {
		t.Errorf("Expected no rooms, got %d", len(all))
	}
}

func TestRegistry_RemoveUserFromAllRoomsUnknown(t *testing.T) {
	rooms, err := newTestRegistry().RemoveUserFromAllRooms(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("Expected no rooms for an unknown user, got %v", rooms)
	}
}

func TestRegistry_ReturnedRoomsAreCopies(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	rm, _ := r.CreateOrExtendRoom(ctx, "lobby", testUser("a"))
	rm.Members["intruder"] = testUser("intruder")

	stored, _ := r.GetByName(ctx, "lobby")
	if stored.Has("intruder") {
		t.Error("Expected registry state to be isolated from returned rooms")
	}
}

func TestRoom_UsersSorted(t *testing.T) {
	rm := Room{Name: "x", Members: map[string]user.User{
		"2": {ID: "2", Name: "bob"},
		"1": {ID: "1", Name: "alice"},
		"3": {ID: "3", Name: "alice"},
	}}

	users := rm.Users()
	want := []string{"1", "3", "2"}
	for i, id := range want {
		if users[i].ID != id {
			t.Errorf("Expected users[%d] = %s, got %s", i, id, users[i].ID)
		}
	}
}
