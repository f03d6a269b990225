package egress

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"

	"github.com/duetcast/controller/config"
	"github.com/duetcast/controller/internal/models"
	"github.com/duetcast/controller/internal/roomkey"
	"github.com/duetcast/controller/pkg/storage"
)

// ObjectStore is the durable storage a finalized recording is uploaded to.
// *storage.S3 satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	MakeObjectPublic(ctx context.Context, key string) error
	PublicObjectURL(key string) string
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
	SignedLinkExpire() time.Duration
}

// Index is the realtime recordings index the finalization result is written
// to, plus the dedupe marker that makes finalization idempotent.
type Index interface {
	SetRecording(ctx context.Context, roomKey, recordingID string, res models.FinalizationResult) error
	FindRoomKeyByRecording(ctx context.Context, recordingID string) (string, error)
	MarkFinalizing(ctx context.Context, egressID string) (bool, error)
}

// Finalizer reconciles a terminal egress result: locate the recorded file,
// upload it, and persist the outcome. Triggered by the webhook or directly
// after a stop call; whichever fires first wins, the loser is a no-op.
type Finalizer struct {
	registry *Registry
	store    ObjectStore
	index    Index
	catalog  Catalog
	resolver roomkey.Resolver
	cfg      config.RecordingConfig
	logger   *zap.Logger
}

// NewFinalizer creates a finalizer. store and catalog may be nil (degraded
// modes: link stays pending, catalog untouched).
func NewFinalizer(registry *Registry, store ObjectStore, index Index, catalog Catalog, resolver roomkey.Resolver, cfg config.RecordingConfig, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{
		registry: registry,
		store:    store,
		index:    index,
		catalog:  catalog,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Finalize processes one terminal egress result. Degraded outcomes (missing
// file, unconfigured storage, denied public access) are written into the
// index rather than returned; the session is always evicted.
func (f *Finalizer) Finalize(ctx context.Context, egressID string, info *livekit.EgressInfo) {
	log := f.logger.With(zap.String("egress_id", egressID))

	first, err := f.index.MarkFinalizing(ctx, egressID)
	if err != nil {
		// Dedupe is best-effort: losing the marker must not lose the event.
		log.Warn("finalization dedupe marker unavailable", zap.Error(err))
	} else if !first {
		// The winner's deferred eviction owns cleanup; evicting here could
		// strip a winner that has not reached its registry lookup yet.
		log.Info("duplicate finalization trigger ignored")
		return
	}

	sess, registered := f.registry.Lookup(egressID)
	defer f.registry.Evict(egressID)

	roomName := ""
	if registered {
		roomName = sess.RoomName
	} else if info != nil {
		roomName = info.RoomName
	}

	key := ""
	if registered {
		key = f.resolver.Resolve(sess.RoomKey, sess.RoomURL, sess.RoomName)
	} else {
		key = f.resolver.Resolve("", "", roomName)
	}
	if key == "" {
		found, err := f.index.FindRoomKeyByRecording(ctx, egressID)
		if err != nil {
			log.Warn("recordings index scan failed", zap.Error(err))
		}
		key = found
	}

	jobFailed := info != nil &&
		(info.Status == livekit.EgressStatus_EGRESS_FAILED || info.Status == livekit.EgressStatus_EGRESS_ABORTED)

	res := models.FinalizationResult{UploadProgress: 100}

	filePath := f.locateFile(sess, info, roomName)
	if filePath == "" {
		log.Warn("no recording file reported")
		res.LinkStatus = models.LinkStatusMissing
		res.LinkError = models.LinkErrNoFileReported
		f.persist(ctx, log, key, egressID, finalStatus(jobFailed, ""), res, "", "", 0)
		return
	}

	if !f.waitForFile(ctx, filePath) {
		log.Warn("recording file never appeared", zap.String("path", filePath))
		res.LinkStatus = models.LinkStatusMissing
		res.LinkError = models.LinkErrFileMissing
		f.persist(ctx, log, key, egressID, finalStatus(jobFailed, ""), res, "", "", 0)
		return
	}

	if f.store == nil {
		log.Warn("no durable storage configured, leaving file local", zap.String("path", filePath))
		res.LinkStatus = models.LinkStatusPending
		res.LinkError = models.LinkErrStorageNotConfigured
		f.persist(ctx, log, key, egressID, finalStatus(jobFailed, ""), res, "", "", 0)
		return
	}

	keyNS := key
	if keyNS == "" {
		keyNS = Slug(roomName)
	}
	if keyNS == "" {
		keyNS = "unknown"
	}
	objectKey := storage.RecordingKey(keyNS, egressID)

	downloadURL, linkType, size, uploadErr := f.upload(ctx, log, filePath, objectKey)
	switch {
	case uploadErr != nil:
		res.LinkStatus = models.LinkStatusFailed
		res.LinkError = models.LinkErrUploadFailed
	case downloadURL == "":
		res.LinkStatus = models.LinkStatusFailed
		res.LinkError = models.LinkErrLinkFailed
	default:
		res.LinkStatus = models.LinkStatusReady
		res.DownloadURL = downloadURL
		res.LinkType = linkType
		res.UploadCompletedAt = time.Now().UnixMilli()
		if f.cfg.DeleteLocalAfterUpload {
			if err := os.Remove(filePath); err != nil {
				log.Warn("delete local recording failed", zap.String("path", filePath), zap.Error(err))
			}
		}
	}

	f.persist(ctx, log, key, egressID, finalStatus(jobFailed, res.DownloadURL), res, objectKey, downloadURL, size)
}

func finalStatus(jobFailed bool, downloadURL string) string {
	switch {
	case downloadURL != "":
		return models.RecordingStatusUploaded
	case jobFailed:
		return models.RecordingStatusFailed
	default:
		return models.RecordingStatusComplete
	}
}

// locateFile prefers the path in the job result, then the registered target
// path, then a scan of the output directory.
func (f *Finalizer) locateFile(sess *models.RecordingSession, info *livekit.EgressInfo, roomName string) string {
	if info != nil {
		for _, fr := range info.FileResults {
			if fr.GetFilename() != "" {
				return fr.GetFilename()
			}
		}
	}
	if sess != nil && sess.TargetFilePath != "" {
		return sess.TargetFilePath
	}
	return f.scanOutputDir(roomName)
}

// scanOutputDir is the last-resort heuristic: prefer files carrying the room
// slug, otherwise take the most recently modified recording.
func (f *Finalizer) scanOutputDir(roomName string) string {
	dir := f.cfg.OutputDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "recordings")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	slug := Slug(roomName)
	best := ""
	bestSlugged := false
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		slugged := slug != "" && strings.Contains(e.Name(), slug)
		if slugged && !bestSlugged {
			best, bestMod, bestSlugged = e.Name(), fi.ModTime(), true
			continue
		}
		if slugged == bestSlugged && fi.ModTime().After(bestMod) {
			best, bestMod = e.Name(), fi.ModTime()
		}
	}
	if best == "" {
		return ""
	}
	return filepath.Join(dir, best)
}

// waitForFile tolerates the egress writer's flush delay with bounded retries.
func (f *Finalizer) waitForFile(ctx context.Context, path string) bool {
	attempts := f.cfg.FileWaitAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return true
		}
		if i < attempts-1 {
			sleepCtx(ctx, f.cfg.FileWaitDelay)
		}
	}
	return false
}

// upload streams the file to durable storage and returns the download link.
// A permanent public URL when the bucket allows public-read, a long-lived
// signed URL otherwise.
func (f *Finalizer) upload(ctx context.Context, log *zap.Logger, filePath, objectKey string) (url, linkType string, size int64, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		log.Error("open recording file failed", zap.String("path", filePath), zap.Error(err))
		return "", "", 0, err
	}
	defer file.Close()
	if fi, statErr := file.Stat(); statErr == nil {
		size = fi.Size()
	}

	log.Info("uploading recording", zap.String("key", objectKey), zap.Int64("size", size))
	if _, err = f.store.Upload(ctx, objectKey, "video/mp4", file, size); err != nil {
		log.Error("upload recording failed", zap.Error(err))
		return "", "", size, err
	}

	if aclErr := f.store.MakeObjectPublic(ctx, objectKey); aclErr == nil {
		return f.store.PublicObjectURL(objectKey), "public", size, nil
	} else {
		log.Info("public-read denied, falling back to signed URL", zap.Error(aclErr))
	}
	signed, signErr := f.store.SignedURL(ctx, objectKey, f.store.SignedLinkExpire())
	if signErr != nil {
		log.Error("signed URL generation failed", zap.Error(signErr))
		return "", "", size, nil
	}
	return signed, "signed", size, nil
}

// persist writes the result to the realtime index and the catalog. A missing
// room key degrades to catalog-only (never silently dropped).
func (f *Finalizer) persist(ctx context.Context, log *zap.Logger, roomKey, egressID, status string, res models.FinalizationResult, objectKey, downloadURL string, size int64) {
	res.Status = status
	if roomKey != "" {
		if err := f.index.SetRecording(ctx, roomKey, egressID, res); err != nil {
			log.Error("recordings index write failed", zap.String("room_key", roomKey), zap.Error(err))
		}
	} else {
		log.Warn("no room key resolved, catalog-only finalization",
			zap.String("status", status),
			zap.String("link_status", res.LinkStatus),
		)
	}
	if f.catalog != nil {
		if err := f.catalog.UpdateFinalized(ctx, egressID, status, objectKey, downloadURL, res.LinkStatus, res.LinkError, size); err != nil {
			log.Error("catalog update failed", zap.Error(err))
		}
	}
	log.Info("finalization persisted",
		zap.String("status", status),
		zap.String("link_status", res.LinkStatus),
		zap.String("link_error", res.LinkError),
	)
}
