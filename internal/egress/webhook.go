package egress

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"go.uber.org/zap"

	"github.com/duetcast/controller/pkg/response"
)

// FinalizeDispatcher receives terminal egress results. *Finalizer satisfies it.
type FinalizeDispatcher interface {
	Finalize(ctx context.Context, egressID string, info *livekit.EgressInfo)
}

// WebhookHandler consumes LiveKit webhook events. Egress completions trigger
// finalization; everything else is acknowledged and dropped.
type WebhookHandler struct {
	verifier  auth.KeyProvider
	finalizer FinalizeDispatcher
	logger    *zap.Logger
}

// NewWebhookHandler creates the webhook endpoint handler. The key pair is the
// webhook-specific one, not the egress API credentials.
func NewWebhookHandler(webhookKey, webhookSecret string, finalizer FinalizeDispatcher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier:  auth.NewSimpleKeyProvider(webhookKey, webhookSecret),
		finalizer: finalizer,
		logger:    logger,
	}
}

// Handle handles POST /webhooks/livekit. Once the signature verifies the
// response is always 200 {received: true}; processing failures are logged
// rather than surfaced, so the upstream never enters a retry storm.
func (h *WebhookHandler) Handle(c *gin.Context) {
	event, err := webhook.ReceiveWebhookEvent(c.Request, h.verifier)
	if err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err))
		response.Unauthorized(c, "invalid webhook signature")
		return
	}

	if info := event.GetEgressInfo(); info != nil && h.isTerminalEvent(event.GetEvent(), info) {
		h.logger.Info("egress terminal event",
			zap.String("event", event.GetEvent()),
			zap.String("egress_id", info.EgressId),
			zap.String("status", info.Status.String()),
		)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("webhook finalization panic", zap.Any("panic", r))
				}
			}()
			h.finalizer.Finalize(context.Background(), info.EgressId, info)
		}()
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) isTerminalEvent(name string, info *livekit.EgressInfo) bool {
	if name == webhook.EventEgressEnded {
		return true
	}
	return terminal(info.Status)
}
