package egress

import (
	"context"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// Client is the subset of the LiveKit egress service the controller uses.
// *lksdk.EgressClient satisfies it; tests substitute fakes.
type Client interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
	StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error)
	ListEgress(ctx context.Context, req *livekit.ListEgressRequest) (*livekit.ListEgressResponse, error)
}

var _ Client = (*lksdk.EgressClient)(nil)

// NewClient creates the LiveKit egress client for the deployment.
func NewClient(url, apiKey, apiSecret string) Client {
	return lksdk.NewEgressClient(url, apiKey, apiSecret)
}

// terminal reports whether an egress status will never change again.
func terminal(status livekit.EgressStatus) bool {
	switch status {
	case livekit.EgressStatus_EGRESS_COMPLETE,
		livekit.EgressStatus_EGRESS_FAILED,
		livekit.EgressStatus_EGRESS_ABORTED,
		livekit.EgressStatus_EGRESS_LIMIT_REACHED:
		return true
	}
	return false
}
