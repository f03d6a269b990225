// Package rtstore is the realtime key-value store shared with the rest of the
// platform: presence entries written by the room clients (read-only here) and
// the recordings index written by the finalizer.
package rtstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duetcast/controller/internal/models"
)

const (
	presencePrefix   = "presence:"
	recordingsPrefix = "recordings:"
	finalizedPrefix  = "egress:finalized:"

	// finalizedTTL bounds the dedupe window for duplicate finalization
	// triggers (stop-call vs. webhook race, webhook redelivery).
	finalizedTTL = 15 * time.Minute

	scanBatch = 100
)

// Client reads presence and writes the recordings index in Redis.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient creates a realtime store client.
func NewClient(rdb *redis.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rdb: rdb, logger: logger}
}

// Entries returns all presence entries for a room (active and not).
func (c *Client) Entries(ctx context.Context, roomKey string) ([]models.PresenceEntry, error) {
	raw, err := c.rdb.HGetAll(ctx, presencePrefix+roomKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	entries := make([]models.PresenceEntry, 0, len(raw))
	for field, v := range raw {
		var e models.PresenceEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			c.logger.Warn("invalid presence entry", zap.String("room_key", roomKey), zap.String("field", field), zap.Error(err))
			continue
		}
		if e.Identity == "" {
			e.Identity = field
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SetRecording writes the finalization result at recordings/{roomKey}/{recordingID}.
func (c *Client) SetRecording(ctx context.Context, roomKey, recordingID string, res models.FinalizationResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal recording result: %w", err)
	}
	if err := c.rdb.HSet(ctx, recordingsPrefix+roomKey, recordingID, raw).Err(); err != nil {
		return fmt.Errorf("write recording result: %w", err)
	}
	return nil
}

// FindRoomKeyByRecording scans the recordings index for the room key holding
// the given recording id. Returns "" when no entry matches.
func (c *Client) FindRoomKeyByRecording(ctx context.Context, recordingID string) (string, error) {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, recordingsPrefix+"*", scanBatch).Result()
		if err != nil {
			return "", fmt.Errorf("scan recordings index: %w", err)
		}
		for _, key := range keys {
			ok, err := c.rdb.HExists(ctx, key, recordingID).Result()
			if err != nil {
				return "", fmt.Errorf("probe recordings index: %w", err)
			}
			if ok {
				return strings.TrimPrefix(key, recordingsPrefix), nil
			}
		}
		cursor = next
		if cursor == 0 {
			return "", nil
		}
	}
}

// MarkFinalizing claims the finalization of an egress id. The first caller
// gets true; duplicates within the dedupe window get false.
func (c *Client) MarkFinalizing(ctx context.Context, egressID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, finalizedPrefix+egressID, 1, finalizedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim finalization: %w", err)
	}
	return ok, nil
}

// Ping reports store reachability (health endpoint).
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
