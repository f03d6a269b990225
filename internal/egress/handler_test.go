package egress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/livekit"

	"github.com/duetcast/controller/internal/models"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newHandlerRouter(t *testing.T, client Client, registry *Registry, store StorePinger, livekitOK bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	c := NewController(client, registry, nil, fastRecordingCfg(t), nil)
	h := NewHandler(c, registry, store, livekitOK, nil)
	r := gin.New()
	r.POST("/recordings/start", h.Start)
	r.POST("/recordings/stop", h.Stop)
	r.GET("/health", h.Health)
	return r
}

func TestHandlerStart(t *testing.T) {
	r := newHandlerRouter(t, &fakeClient{startInfo: &livekit.EgressInfo{EgressId: "EG_1"}}, NewRegistry(), nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings/start", strings.NewReader(`{"roomName":"debate-42"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			RecordingID string `json:"recordingId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Data.RecordingID != "EG_1" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandlerStartConflictWhenRoomAlreadyRecording(t *testing.T) {
	registry := NewRegistry()
	registry.Insert(&models.RecordingSession{EgressID: "EG_0", RoomName: "debate-42"})
	r := newHandlerRouter(t, &fakeClient{}, registry, nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings/start", strings.NewReader(`{"roomName":"debate-42"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestHandlerStartRequiresRoomName(t *testing.T) {
	r := newHandlerRouter(t, &fakeClient{}, NewRegistry(), nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings/start", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlerStopRequiresRecordingID(t *testing.T) {
	r := newHandlerRouter(t, &fakeClient{}, NewRegistry(), nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings/stop", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlerStop(t *testing.T) {
	r := newHandlerRouter(t, &fakeClient{}, NewRegistry(), nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings/stop", strings.NewReader(`{"recordingId":"EG_1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandlerHealth(t *testing.T) {
	tests := []struct {
		name      string
		pinger    StorePinger
		livekitOK bool
		wantStore bool
	}{
		{"all up", fakePinger{}, true, true},
		{"store down", fakePinger{err: context.DeadlineExceeded}, true, false},
		{"no store", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newHandlerRouter(t, &fakeClient{}, NewRegistry(), tt.pinger, tt.livekitOK)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body struct {
				Data struct {
					OK      bool `json:"ok"`
					LiveKit bool `json:"livekit"`
					Store   bool `json:"store"`
				} `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Data.LiveKit != tt.livekitOK || body.Data.Store != tt.wantStore {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}
