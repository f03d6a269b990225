package egress

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/duetcast/controller/pkg/response"
)

// StorePinger reports realtime-store reachability for the health endpoint.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// StartRecordingRequest is the body of POST /recordings/start.
type StartRecordingRequest struct {
	RoomName    string         `json:"roomName"`
	Layout      string         `json:"layout"`
	RoomKey     string         `json:"roomKey"`
	RoomURL     string         `json:"roomUrl"`
	Preferences map[string]any `json:"preferences"`
	Metadata    string         `json:"metadata"`
}

// StopRecordingRequest is the body of POST /recordings/stop.
type StopRecordingRequest struct {
	RecordingID string `json:"recordingId"`
}

// Handler exposes the recording lifecycle over HTTP.
type Handler struct {
	controller *Controller
	registry   *Registry
	store      StorePinger
	livekitOK  bool
	logger     *zap.Logger
}

// NewHandler creates the recordings HTTP handler. livekitOK reflects whether
// egress credentials are configured (health reporting).
func NewHandler(controller *Controller, registry *Registry, store StorePinger, livekitOK bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{controller: controller, registry: registry, store: store, livekitOK: livekitOK, logger: logger}
}

// Start handles POST /recordings/start.
func (h *Handler) Start(c *gin.Context) {
	var req StartRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.RoomName == "" {
		response.BadRequest(c, "roomName is required")
		return
	}
	if h.registry.ActiveForRoom(req.RoomName) {
		response.Conflict(c, "recording already in progress for this room")
		return
	}

	session, err := h.controller.Start(c.Request.Context(), StartRequest{
		RoomName:    req.RoomName,
		Layout:      req.Layout,
		RoomKey:     req.RoomKey,
		RoomURL:     req.RoomURL,
		Preferences: req.Preferences,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logger.Error("start recording failed", zap.Error(err), zap.String("room", req.RoomName))
		response.Internal(c, "failed to start recording")
		return
	}
	response.OK(c, gin.H{"recordingId": session.EgressID, "filepath": session.TargetFilePath})
}

// Stop handles POST /recordings/stop. Finalization continues asynchronously
// after the stop outcome is known.
func (h *Handler) Stop(c *gin.Context) {
	var req StopRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.RecordingID == "" {
		response.BadRequest(c, "recordingId is required")
		return
	}

	if err := h.controller.Stop(c.Request.Context(), req.RecordingID); err != nil {
		h.logger.Error("stop recording failed", zap.Error(err), zap.String("egress_id", req.RecordingID))
		response.Internal(c, "failed to stop recording")
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	storeOK := false
	if h.store != nil && h.store.Ping(c.Request.Context()) == nil {
		storeOK = true
	}
	response.OK(c, gin.H{
		"ok":      true,
		"livekit": h.livekitOK,
		"store":   storeOK,
	})
}
