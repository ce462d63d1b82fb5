/*
Package room holds formed chat rooms and the registry that owns their membership.
*/
package room

import (
	"sort"

	"groupmatch/internal/app/user"
)

// Room is a formed, named group of users.
type Room struct {
	// Name uniquely identifies the room.
	Name string `json:"name"`

	// Host is the member the room was formed around.
	Host user.User `json:"host"`

	// Members is keyed by user id, so a user can appear at most once.
	Members map[string]user.User `json:"members"`
}

// View is the read-only projection returned by the HTTP endpoints.
type View struct {
	Name  string      `json:"name"`
	Host  user.User   `json:"host"`
	Users []user.User `json:"users"`
}

// Has reports whether userID is a member.
func (r Room) Has(userID string) bool {
	_, ok := r.Members[userID]
	return ok
}

// Len returns the member count.
func (r Room) Len() int {
	return len(r.Members)
}

// Users returns the members ordered by name, then id.
func (r Room) Users() []user.User {
	out := make([]user.User, 0, len(r.Members))
	for _, u := range r.Members {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// View projects the room for HTTP responses.
func (r Room) View() View {
	return View{Name: r.Name, Host: r.Host, Users: r.Users()}
}

// clone returns a deep copy whose member map can be mutated freely.
func (r Room) clone() Room {
	members := make(map[string]user.User, len(r.Members))
	for id, u := range r.Members {
		members[id] = u
	}
	r.Members = members
	return r
}
