package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents recording lifecycle.
const (
	RecordingStatusRecording  = "recording"
	RecordingStatusProcessing = "processing"
	RecordingStatusUploaded   = "uploaded"
	RecordingStatusComplete   = "complete"
	RecordingStatusFailed     = "failed"
)

// Recording is a catalog row for one egress job (durable mirror of the
// realtime index entry).
type Recording struct {
	ID         uuid.UUID `json:"id"`
	EgressID   string    `json:"egress_id"`
	RoomName   string    `json:"room_name"`
	RoomKey    string    `json:"room_key,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	S3Key      string    `json:"s3_key,omitempty"`
	S3URL      string    `json:"s3_url,omitempty"`
	FileSize   int64     `json:"file_size"`
	Status     string    `json:"status"`
	LinkStatus string    `json:"link_status,omitempty"`
	LinkError  string    `json:"link_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
