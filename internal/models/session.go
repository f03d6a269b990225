package models

// Roles a joining client may request.
const (
	RoleParticipant = "participant"
	RoleSpectator   = "spectator"
)

// Presence entry status values written by the realtime store.
const (
	PresenceStatusActive = "active"
	PresenceStatusLeft   = "left"
)

// PresenceEntry is a read-only view of one connected client in a room.
// The realtime store owns these; the controller only reads them for admission.
type PresenceEntry struct {
	Identity string `json:"identity"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Active reports whether the entry counts toward admission checks.
func (e PresenceEntry) Active() bool {
	return e.Status == "" || e.Status == PresenceStatusActive
}

// RecordingSession is the in-memory state for one running egress job,
// held in the session registry from start until finalization.
type RecordingSession struct {
	EgressID       string
	RoomName       string
	RoomKey        string // explicit persistence key supplied at start, if any
	RoomURL        string // room URL a key can be derived from when no explicit key was given
	TargetFilePath string // local path the egress job was told to write
	Preferences    map[string]any
	Metadata       string
}

// Link status values recorded for a finalized recording.
const (
	LinkStatusReady   = "ready"
	LinkStatusPending = "pending"
	LinkStatusMissing = "missing"
	LinkStatusFailed  = "failed"
)

// Link error reason codes.
const (
	LinkErrNoFileReported       = "no_file_reported"
	LinkErrFileMissing          = "file_missing"
	LinkErrStorageNotConfigured = "storage_not_configured"
	LinkErrUploadFailed         = "upload_failed"
	LinkErrLinkFailed           = "link_generation_failed"
)

// FinalizationResult is what the finalizer writes into the realtime
// recordings index at recordings/{roomKey}/{recordingId}.
type FinalizationResult struct {
	Status            string `json:"status"` // uploaded | complete | failed
	UploadProgress    int    `json:"uploadProgress"`
	UploadCompletedAt int64  `json:"uploadCompletedAt,omitempty"` // unix millis
	DownloadURL       string `json:"downloadUrl,omitempty"`
	LinkStatus        string `json:"linkStatus"`
	LinkError         string `json:"linkError,omitempty"`
	LinkType          string `json:"linkType,omitempty"` // public | signed
}
