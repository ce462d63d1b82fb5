package errs

import "net/http"

// errorMap holds the template CustomError for every known code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrUnsupportedEvent:     {Code: ErrUnsupportedEvent, Message: "Unsupported event %q."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Matchmaking and Room Errors
	ErrAlreadyQueued:    {Code: ErrAlreadyQueued, Message: "You are already in the queue. Please wait to be matched."},
	ErrNotQueued:        {Code: ErrNotQueued, Message: "You are not waiting in any queue."},
	ErrInvalidGroupSize: {Code: ErrInvalidGroupSize, Message: "Group size must be at least %d.", Status: http.StatusBadRequest},
	ErrAlreadyInRoom:    {Code: ErrAlreadyInRoom, Message: "You are already in a room."},
	ErrRoomExists:       {Code: ErrRoomExists, Message: "Room name already exists.", Status: http.StatusConflict},
	ErrRoomNotFound:     {Code: ErrRoomNotFound, Message: "Room not found.", Status: http.StatusNotFound},

	// 3xxx: User and Session Errors
	ErrUserNotFound:   {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrSessionNotLive: {Code: ErrSessionNotLive, Message: "Connection is no longer active."},
	ErrForbidden:      {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},

	// 5xxx: Internal System Errors
	ErrUnknown:          {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable: {Code: ErrStoreUnavailable, Message: "Service temporarily unavailable.", Status: http.StatusServiceUnavailable},
}
