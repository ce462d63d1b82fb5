/*
Package errs provides the application error type and its numeric error codes.

Codes identify business and system failures both inside the server and on the wire,
where they travel in HTTP envelopes and websocket error frames.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request or event payload validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that a body or frame is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after a valid JSON document.
	ErrExtraContentInBody = 1004

	// ErrUnsupportedEvent indicates a websocket frame with an unknown event name.
	ErrUnsupportedEvent = 1005

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Matchmaking and Room Errors
const (
	// ErrAlreadyQueued indicates the user already holds an outstanding join request.
	ErrAlreadyQueued = 2001

	// ErrNotQueued indicates the user is not waiting in any matchmaking bucket.
	ErrNotQueued = 2002

	// ErrInvalidGroupSize indicates a requested group size the matchmaker cannot serve.
	ErrInvalidGroupSize = 2003

	// ErrAlreadyInRoom indicates the user is already a member of a formed room.
	ErrAlreadyInRoom = 2004

	// ErrRoomExists indicates that a room with the requested name already exists.
	ErrRoomExists = 2102

	// ErrRoomNotFound indicates that the referenced room does not exist.
	ErrRoomNotFound = 2103
)

// 3xxx: User and Session Errors
const (
	// ErrUserNotFound indicates an operation referenced an unknown user identifier.
	ErrUserNotFound = 3001

	// ErrSessionNotLive indicates the transport no longer knows the referenced session.
	ErrSessionNotLive = 3002

	// ErrForbidden indicates the acting user may not perform the event.
	ErrForbidden = 3003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates the keyed store backing users or rooms failed.
	ErrStoreUnavailable = 5001
)
