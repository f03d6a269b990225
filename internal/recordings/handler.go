package recordings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duetcast/controller/internal/models"
	"github.com/duetcast/controller/pkg/response"
	"github.com/duetcast/controller/pkg/storage"
)

// Handler handles recording catalog HTTP endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a recordings handler. s3 may be nil (download URLs disabled).
func NewHandler(repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// ListByRoom handles GET /rooms/:room/recordings.
func (h *Handler) ListByRoom(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		response.BadRequest(c, "room is required")
		return
	}
	list, err := h.repo.ListByRoom(c.Request.Context(), room)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("room", room))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// GenerateDownloadURL handles GET /recordings/:id/download-url. Returns a
// presigned URL for a finalized recording.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	recordingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), recordingID)
	if err != nil || rec == nil {
		response.NotFound(c, "recording not found")
		return
	}
	if rec.Status != models.RecordingStatusUploaded || rec.S3Key == "" {
		response.BadRequest(c, "recording not ready for download")
		return
	}
	if h.s3 == nil {
		response.Internal(c, "S3 not configured")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.SignedURL(c.Request.Context(), rec.S3Key, expire)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}
