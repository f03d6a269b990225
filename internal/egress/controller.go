package egress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"

	"github.com/duetcast/controller/config"
	"github.com/duetcast/controller/internal/models"
)

// Catalog is the durable recordings catalog (Postgres). Nil-safe in callers:
// catalog writes are best-effort and never fail the lifecycle.
type Catalog interface {
	CreateStarted(ctx context.Context, rec *models.Recording) error
	UpdateFinalized(ctx context.Context, egressID, status, s3Key, s3URL, linkStatus, linkError string, fileSize int64) error
}

// StartRequest carries the parameters of a recording start.
type StartRequest struct {
	RoomName    string
	Layout      string
	RoomKey     string
	RoomURL     string
	Preferences map[string]any
	Metadata    string
}

// Controller drives the egress lifecycle: start a room-composite job, stop it
// with bounded retries and a status probe, and hand terminal results to the
// finalizer.
type Controller struct {
	client   Client
	registry *Registry
	catalog  Catalog
	cfg      config.RecordingConfig
	logger   *zap.Logger

	// finalize is invoked with the terminal (or synthesized) result after a
	// successful stop. Production wiring spawns the finalizer; tests record.
	finalize func(egressID string, info *livekit.EgressInfo)
}

// NewController creates an egress lifecycle controller.
func NewController(client Client, registry *Registry, catalog Catalog, cfg config.RecordingConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		client:   client,
		registry: registry,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		finalize: func(string, *livekit.EgressInfo) {},
	}
}

// SetFinalizeFunc sets the post-stop finalization hook.
func (c *Controller) SetFinalizeFunc(fn func(egressID string, info *livekit.EgressInfo)) {
	c.finalize = fn
}

// Start requests a room-composite recording and registers the session.
// Nothing is registered when the egress request fails.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*models.RecordingSession, error) {
	if req.RoomName == "" {
		return nil, fmt.Errorf("roomName is required")
	}
	layout := req.Layout
	if layout == "" {
		layout = c.cfg.Layout
	}

	dir := c.outputDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	// Room slug + millisecond timestamp keeps concurrent sessions from
	// colliding on the shared output directory.
	outPath := filepath.Join(dir, fmt.Sprintf("%s-%d.mp4", Slug(req.RoomName), time.Now().UnixMilli()))

	info, err := c.client.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: req.RoomName,
		Layout:   layout,
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_MP4,
			Filepath: outPath,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("start egress: %w", err)
	}

	session := &models.RecordingSession{
		EgressID:       info.EgressId,
		RoomName:       req.RoomName,
		RoomKey:        req.RoomKey,
		RoomURL:        req.RoomURL,
		TargetFilePath: outPath,
		Preferences:    req.Preferences,
		Metadata:       req.Metadata,
	}
	c.registry.Insert(session)

	if c.catalog != nil {
		rec := &models.Recording{
			EgressID: info.EgressId,
			RoomName: req.RoomName,
			RoomKey:  req.RoomKey,
			FilePath: outPath,
			Status:   models.RecordingStatusRecording,
		}
		if err := c.catalog.CreateStarted(ctx, rec); err != nil {
			c.logger.Error("catalog insert failed", zap.Error(err), zap.String("egress_id", info.EgressId))
		}
	}

	c.logger.Info("recording started",
		zap.String("egress_id", info.EgressId),
		zap.String("room", req.RoomName),
		zap.String("output", outPath),
	)
	return session, nil
}

// Stop halts the egress job. Not-found/already-stopped responses count as
// success. After retry exhaustion a bounded status probe can still confirm
// the job inactive and turn the failure into a success. On any successful
// outcome the finalize hook fires exactly once with the job's terminal result
// (synthesized COMPLETE when the stop response carried none).
func (c *Controller) Stop(ctx context.Context, egressID string) error {
	if egressID == "" {
		return fmt.Errorf("recordingId is required")
	}

	var result *livekit.EgressInfo
	var lastErr error

	attempts := c.cfg.StopMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		info, err := c.client.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID})
		if err == nil {
			result = info
			lastErr = nil
			break
		}
		if alreadyStopped(err) {
			c.logger.Info("egress already terminal", zap.String("egress_id", egressID), zap.Error(err))
			lastErr = nil
			break
		}
		lastErr = err
		c.logger.Warn("stop egress failed",
			zap.String("egress_id", egressID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < attempts {
			sleepCtx(ctx, c.cfg.StopRetryDelay)
		}
	}

	if lastErr != nil {
		if c.confirmInactive(ctx, egressID) {
			c.logger.Info("egress confirmed inactive after stop errors", zap.String("egress_id", egressID))
			lastErr = nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("stop egress %s: %w", egressID, lastErr)
	}

	// Guarantee finalization even when the stop response omitted a terminal
	// result: fall back to a synthesized COMPLETE.
	final := result
	if final == nil || !terminal(final.Status) {
		final = &livekit.EgressInfo{EgressId: egressID, Status: livekit.EgressStatus_EGRESS_COMPLETE}
	}
	c.finalize(egressID, final)
	return nil
}

// confirmInactive probes the job listing a bounded number of times and
// reports whether the job is no longer running.
func (c *Controller) confirmInactive(ctx context.Context, egressID string) bool {
	for i := 0; i < c.cfg.StopProbeAttempts; i++ {
		if i > 0 {
			sleepCtx(ctx, c.cfg.StopProbeDelay)
		}
		resp, err := c.client.ListEgress(ctx, &livekit.ListEgressRequest{EgressId: egressID})
		if err != nil {
			c.logger.Warn("egress status probe failed", zap.String("egress_id", egressID), zap.Error(err))
			continue
		}
		active := false
		for _, item := range resp.GetItems() {
			if item.EgressId == egressID && !terminal(item.Status) {
				active = true
			}
		}
		if !active {
			return true
		}
	}
	return false
}

func (c *Controller) outputDir() string {
	if c.cfg.OutputDir != "" {
		return c.cfg.OutputDir
	}
	return filepath.Join(os.TempDir(), "recordings")
}

// Slug reduces a room name to a filesystem-safe token.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func alreadyStopped(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "already stopped") ||
		strings.Contains(msg, "egress is not active") ||
		strings.Contains(msg, "cannot be stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
