/*
Package randx generates identifiers: transport session ids, generated room names and
user ids derived from a display name.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// RoomNamePrefix starts every generated room name.
	RoomNamePrefix = "room-"

	// RoomNameRandomLength is the number of random Base62 characters after the prefix.
	RoomNameRandomLength = 6
)

// userIDNamespace scopes derived user ids so they never collide with other UUIDv5 spaces.
var userIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("groupmatch:user"))

// base62 returns n cryptographically random Base62 characters.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// RoomName generates a room name such as "room-a8ZK2q".
func RoomName() (string, error) {
	suffix, err := base62(RoomNameRandomLength)
	if err != nil {
		return "", fmt.Errorf("room name: %w", err)
	}
	return RoomNamePrefix + suffix, nil
}

// SessionID generates the identifier of one live transport connection.
func SessionID() string {
	return uuid.NewString()
}

// UserID derives a stable user id from a display name and the moment the identity was
// first requested. The same inputs always produce the same id.
func UserID(displayName string, at time.Time) string {
	seed := strconv.FormatInt(at.UnixMilli(), 10) + displayName
	return uuid.NewSHA1(userIDNamespace, []byte(seed)).String()
}
