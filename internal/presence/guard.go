// Package presence implements the admission guard: duplicate-session and
// participant-cap checks over the realtime presence records of a room.
package presence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/duetcast/controller/config"
	"github.com/duetcast/controller/internal/models"
)

// Rejection codes.
const (
	CodeDuplicateSession = "duplicate_session"
	CodeRoomFull         = "room_full"
)

// Reader supplies presence entries for a room.
type Reader interface {
	Entries(ctx context.Context, roomKey string) ([]models.PresenceEntry, error)
}

// Rejection is a structured admission refusal. A nil *Rejection means the
// join may proceed.
type Rejection struct {
	Code    string
	Message string
}

// Guard decides whether a join request may proceed. Presence read failures
// and unresolvable room keys fail open: availability wins over strict
// enforcement.
type Guard struct {
	reader Reader
	cfg    config.PresenceConfig
	logger *zap.Logger
}

// NewGuard creates a presence guard.
func NewGuard(reader Reader, cfg config.PresenceConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{reader: reader, cfg: cfg, logger: logger}
}

// Check evaluates the admission rules for a join with the given role.
// An empty roomKey skips the guard entirely.
func (g *Guard) Check(ctx context.Context, roomKey, role, userID string) *Rejection {
	if roomKey == "" {
		return nil
	}
	if !g.cfg.CheckDuplicateSession && !g.capEnabled() {
		return nil
	}

	entries, err := g.reader.Entries(ctx, roomKey)
	if err != nil {
		g.logger.Warn("presence read failed, admitting", zap.String("room_key", roomKey), zap.Error(err))
		return nil
	}

	participants := 0
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		if g.cfg.CheckDuplicateSession && userID != "" && e.UserID == userID {
			return &Rejection{Code: CodeDuplicateSession, Message: duplicateMessage(role)}
		}
		if e.Role == models.RoleParticipant {
			participants++
		}
	}

	if role == models.RoleParticipant && g.capEnabled() && participants >= g.cfg.ParticipantCap {
		return &Rejection{Code: CodeRoomFull, Message: fullMessage(g.cfg.ParticipantCap)}
	}
	return nil
}

func (g *Guard) capEnabled() bool {
	return g.cfg.EnforceParticipantCap && g.cfg.ParticipantCap > 0
}

func duplicateMessage(role string) string {
	if role == models.RoleSpectator {
		return "You are already watching this room in another session."
	}
	return "You are already connected to this room in another session."
}

func fullMessage(cap int) string {
	if cap == 1 {
		return "Another host is live in this room."
	}
	return fmt.Sprintf("This room already has %d participants.", cap)
}
