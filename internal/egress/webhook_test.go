package egress

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	testWebhookKey    = "whkey"
	testWebhookSecret = "whsecret-whsecret-whsecret-whsecret"
)

type fakeDispatcher struct {
	calls chan *livekit.EgressInfo
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan *livekit.EgressInfo, 4)}
}

func (d *fakeDispatcher) Finalize(_ context.Context, _ string, info *livekit.EgressInfo) {
	d.calls <- info
}

func newWebhookRouter(dispatcher FinalizeDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(testWebhookKey, testWebhookSecret, dispatcher, nil)
	r := gin.New()
	r.POST("/webhooks/livekit", h.Handle)
	return r
}

func marshalEvent(t *testing.T, event *livekit.WebhookEvent) []byte {
	t.Helper()
	body, err := protojson.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

// signBody produces the Authorize header value LiveKit sends: an access token
// carrying the sha256 of the payload.
func signBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	token, err := auth.NewAccessToken(testWebhookKey, secret).
		SetValidFor(5 * time.Minute).
		SetSha256(base64.StdEncoding.EncodeToString(sum[:])).
		ToJWT()
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func postWebhook(r *gin.Engine, body []byte, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/livekit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/webhook+json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookTerminalEventDispatchesFinalization(t *testing.T) {
	dispatcher := newFakeDispatcher()
	r := newWebhookRouter(dispatcher)

	body := marshalEvent(t, &livekit.WebhookEvent{
		Event: webhook.EventEgressEnded,
		EgressInfo: &livekit.EgressInfo{
			EgressId: "EG_1",
			Status:   livekit.EgressStatus_EGRESS_COMPLETE,
		},
	})
	w := postWebhook(r, body, signBody(t, testWebhookSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"received":true}` {
		t.Fatalf("body = %s", got)
	}
	select {
	case info := <-dispatcher.calls:
		if info.EgressId != "EG_1" {
			t.Fatalf("finalized egress = %q", info.EgressId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("terminal event never reached the finalizer")
	}
}

func TestWebhookTerminalStatusWithoutEndedEventDispatches(t *testing.T) {
	dispatcher := newFakeDispatcher()
	r := newWebhookRouter(dispatcher)

	// A failed job surfaces through egress_updated, not egress_ended.
	body := marshalEvent(t, &livekit.WebhookEvent{
		Event: webhook.EventEgressUpdated,
		EgressInfo: &livekit.EgressInfo{
			EgressId: "EG_1",
			Status:   livekit.EgressStatus_EGRESS_FAILED,
		},
	})
	w := postWebhook(r, body, signBody(t, testWebhookSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case <-dispatcher.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("failed-status event never reached the finalizer")
	}
}

func TestWebhookNonTerminalEventIsAcknowledgedOnly(t *testing.T) {
	dispatcher := newFakeDispatcher()
	r := newWebhookRouter(dispatcher)

	body := marshalEvent(t, &livekit.WebhookEvent{
		Event: webhook.EventEgressUpdated,
		EgressInfo: &livekit.EgressInfo{
			EgressId: "EG_1",
			Status:   livekit.EgressStatus_EGRESS_ACTIVE,
		},
	})
	w := postWebhook(r, body, signBody(t, testWebhookSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case info := <-dispatcher.calls:
		t.Fatalf("non-terminal event dispatched finalization: %+v", info)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	validBody := marshalEvent(t, &livekit.WebhookEvent{
		Event:      webhook.EventEgressEnded,
		EgressInfo: &livekit.EgressInfo{EgressId: "EG_1", Status: livekit.EgressStatus_EGRESS_COMPLETE},
	})

	tests := []struct {
		name string
		body []byte
		auth string
	}{
		{"missing header", validBody, ""},
		{"garbage token", validBody, "not-a-jwt"},
		{"wrong secret", validBody, signBody(t, "wrong-secret-wrong-secret-wrong-sec", validBody)},
		{"tampered body", append(append([]byte(nil), validBody...), ' '), signBody(t, testWebhookSecret, validBody)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := newFakeDispatcher()
			r := newWebhookRouter(dispatcher)

			w := postWebhook(r, tt.body, tt.auth)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			select {
			case info := <-dispatcher.calls:
				t.Fatalf("unverified event dispatched finalization: %+v", info)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

type panickyDispatcher struct {
	entered chan struct{}
}

func (d *panickyDispatcher) Finalize(context.Context, string, *livekit.EgressInfo) {
	close(d.entered)
	panic("finalization blew up")
}

func TestWebhookContainsFinalizationPanic(t *testing.T) {
	dispatcher := &panickyDispatcher{entered: make(chan struct{})}
	r := newWebhookRouter(dispatcher)

	body := marshalEvent(t, &livekit.WebhookEvent{
		Event:      webhook.EventEgressEnded,
		EgressInfo: &livekit.EgressInfo{EgressId: "EG_1", Status: livekit.EgressStatus_EGRESS_COMPLETE},
	})
	w := postWebhook(r, body, signBody(t, testWebhookSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case <-dispatcher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("finalizer never invoked")
	}
	// Give the recover a moment; an uncontained panic kills the test binary.
	time.Sleep(50 * time.Millisecond)
}
