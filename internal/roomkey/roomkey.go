// Package roomkey derives the persistence key that namespaces a room's
// recordings and presence in the realtime store. Room keys are the base64url
// form of the room's URL so they stay reversible and path-safe.
package roomkey

import (
	"encoding/base64"
	"strings"
)

// Resolver derives room keys. BaseURL, when set, lets a key be derived from a
// bare room name (BaseURL + "/" + name).
type Resolver struct {
	BaseURL string
}

// Resolve returns the room key with the precedence: explicit key, supplied
// room URL, room-name-derived URL. Returns "" when nothing resolves.
func (r Resolver) Resolve(explicitKey, roomURL, roomName string) string {
	if explicitKey != "" {
		return explicitKey
	}
	if roomURL != "" {
		return Encode(roomURL)
	}
	if roomName != "" && r.BaseURL != "" {
		return Encode(strings.TrimRight(r.BaseURL, "/") + "/" + roomName)
	}
	return ""
}

// Encode turns a room URL into a room key.
func Encode(roomURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(roomURL))
}

// Decode recovers the room URL from a room key. Returns "" for keys that are
// not valid base64url (e.g. externally supplied explicit keys).
func Decode(roomKey string) string {
	raw, err := base64.RawURLEncoding.DecodeString(roomKey)
	if err != nil {
		return ""
	}
	return string(raw)
}
