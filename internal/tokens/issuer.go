package tokens

import (
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/duetcast/controller/internal/models"
)

// NormalizeRole maps any spelling of "spectator"/"viewer" to spectator;
// everything else (including empty) is a participant.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case models.RoleSpectator, "viewer":
		return models.RoleSpectator
	default:
		return models.RoleParticipant
	}
}

// Issuer mints room-scoped LiveKit access tokens.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewIssuer creates a token issuer for the given API key pair.
func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// Mint returns a signed token for the identity in the room. Spectators can
// subscribe and publish data but not publish media or administer the room.
func (i *Issuer) Mint(roomName, identity, metadata, role string) (string, error) {
	if roomName == "" || identity == "" {
		return "", fmt.Errorf("roomName and identity are required")
	}
	spectator := NormalizeRole(role) == models.RoleSpectator

	at := auth.NewAccessToken(i.apiKey, i.apiSecret).
		SetIdentity(identity).
		SetValidFor(i.ttl)
	if metadata != "" {
		at.SetMetadata(metadata)
	}

	grant := &auth.VideoGrant{
		RoomJoin:  true,
		Room:      roomName,
		RoomAdmin: !spectator,
	}
	grant.SetCanPublish(!spectator)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)
	at.AddGrant(grant)

	jwt, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return jwt, nil
}
