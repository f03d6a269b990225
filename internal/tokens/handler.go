package tokens

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"github.com/duetcast/controller/internal/presence"
	"github.com/duetcast/controller/internal/roomkey"
	"github.com/duetcast/controller/pkg/response"
)

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	RoomName string `json:"roomName"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Metadata string `json:"metadata"`
	UserID   string `json:"userId"`
	RoomKey  string `json:"roomKey"`
	RoomURL  string `json:"roomUrl"`
}

// Handler issues access tokens after the presence guard approves.
type Handler struct {
	issuer   *Issuer
	guard    *presence.Guard
	resolver roomkey.Resolver
	logger   *zap.Logger
}

// NewHandler creates the token endpoint handler.
func NewHandler(issuer *Issuer, guard *presence.Guard, resolver roomkey.Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, guard: guard, resolver: resolver, logger: logger}
}

// Issue handles POST /token. The guard runs first and can short-circuit with
// a 409 rejection before any token is minted.
func (h *Handler) Issue(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.RoomName == "" || req.Identity == "" {
		response.BadRequest(c, "roomName and identity are required")
		return
	}
	role := NormalizeRole(req.Role)

	key := h.resolver.Resolve(req.RoomKey, req.RoomURL, req.RoomName)
	if rej := h.guard.Check(c.Request.Context(), key, role, req.UserID); rej != nil {
		h.logger.Info("join rejected",
			zap.String("room", req.RoomName),
			zap.String("code", rej.Code),
			zap.String("user_id", req.UserID),
		)
		response.Rejection(c, rej.Code, rej.Message)
		return
	}

	token, err := h.issuer.Mint(req.RoomName, req.Identity, req.Metadata, role)
	if err != nil {
		h.logger.Error("mint token failed", zap.Error(err), zap.String("room", req.RoomName))
		response.Internal(c, "failed to create token")
		return
	}
	response.OK(c, gin.H{"token": token, "role": role})
}
