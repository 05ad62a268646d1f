package cmn

import "time"

type JobType string

const (
	JobP0       JobType = "P0"
	JobP1       JobType = "P1"
	JobTilegen  JobType = "TILEGEN"
	JobPreview  JobType = "PREVIEW"
	JobCleanup  JobType = "CLEANUP"
)

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a unit of work against a slide (spec.md §3).
type Job struct {
	ID        string    `json:"id"`
	SlideID   string    `json:"slideId"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Diagnostic holds lz4-compressed toolchain stdout captured during the
	// job (currently only the C2 properties read), bounded to
	// DiagnosticMaxRaw bytes before compression so the job row stays small.
	Diagnostic []byte `json:"diagnostic,omitempty"`
}

// DiagnosticMaxRaw bounds how much raw toolchain stdout a job row may
// retain before compression.
const DiagnosticMaxRaw = 64 * 1024

// NeedsRawFile reports whether this job type's preflight must stat the
// slide's raw file before running (spec.md §4.12 step 1).
func (t JobType) NeedsRawFile() bool {
	switch t {
	case JobP0, JobP1, JobTilegen:
		return true
	default:
		return false
	}
}

// Payload is the small FIFO-queue message carried from enqueue to
// dequeue (spec.md §4.5): {jobId, slideId, type, rawPath, format, ...}.
type Payload struct {
	JobID   string  `json:"jobId"`
	SlideID string  `json:"slideId"`
	Type    JobType `json:"type"`
	RawPath string  `json:"rawPath"`
	Format  Format  `json:"format"`

	// type-specific extras
	StartLevel int `json:"startLevel,omitempty"` // P1
}

// ScannerFile tracks a previously-discovered scanner path (spec.md §3).
type ScannerFile struct {
	Path         string     `json:"path"`
	SlideID      string     `json:"slideId"`
	Barcode      *string    `json:"barcode,omitempty"`
	GUID         *string    `json:"guid,omitempty"`
	ScanDatetime *time.Time `json:"scanDatetime,omitempty"`
}

// OutboxEvent is an append-only domain-event record (spec.md §3).
type OutboxEvent struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Operation  string                 `json:"operation"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	SyncedAt   *time.Time             `json:"syncedAt,omitempty"`
}

// PublicationMarker is the per-slide idempotency record for the preview
// publisher (spec.md §3).
type PublicationMarker struct {
	SlideID      string     `json:"slideId"`
	Status       string     `json:"status"` // "complete" | "incomplete"
	StartedAt    time.Time  `json:"startedAt"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	MaxLevel     int        `json:"maxLevel"`
	TargetMaxDim int        `json:"targetMaxDim"`
	ThumbHash    string     `json:"thumbHash"`
	ManifestHash string     `json:"manifestHash"`
	TilesHash    string     `json:"tilesHash"`
	EventID      string     `json:"eventId,omitempty"`
}
