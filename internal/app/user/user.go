/*
Package user holds the participant identity and the directory of connected users.
*/
package user

// User is a participant as seen by the matchmaker and the transport.
// Fields use JSON tags for serialization in websocket events and HTTP responses.
type User struct {
	// ID is the stable identifier, chosen by the client or derived from the display name.
	ID string `json:"userId"`

	// Name is the display name shown to other room members.
	Name string `json:"userName"`

	// Email is the contact address the user supplied.
	Email string `json:"email"`

	// SessionID correlates the user with its current transport connection. It changes on
	// every reconnect and is never used as identity.
	SessionID string `json:"sessionId"`
}

// System is the author of server-generated chat messages.
var System = User{
	ID:        "serverId",
	Name:      "TheServer",
	SessionID: "ServerSocketId",
}
