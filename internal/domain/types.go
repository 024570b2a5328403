package domain

import "time"

// JobKind distinguishes plain transcodes from background compositions.
type JobKind string

const (
	JobKindTranscode JobKind = "transcode"
	JobKindComposite JobKind = "composite"
)

// JobStatus tracks the lifecycle of a single conversion job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// SessionState tracks the load state of the long-lived engine session.
type SessionState string

const (
	SessionStateUnloaded SessionState = "unloaded"
	SessionStateLoading  SessionState = "loading"
	SessionStateReady    SessionState = "ready"
)

// AssetRole identifies one required engine runtime file.
type AssetRole string

const (
	AssetRoleModule AssetRole = "module"
	AssetRoleCore   AssetRole = "core"
	AssetRoleBinary AssetRole = "binary"
)

// EncodeParams is the encoder parameter set for one transcode job.
type EncodeParams struct {
	Preset        string `json:"preset"`
	CRF           int    `json:"crf"`
	AudioBitrate  string `json:"audioBitrate"`
	AudioChannels int    `json:"audioChannels"`
	SampleRate    int    `json:"sampleRate"`
	FastStart     bool   `json:"fastStart"`
}

// CompositeOptions describes how a video is placed over a background image.
// Scale, Offset, and OutputSize use the engine's "a:b" pair notation.
type CompositeOptions struct {
	Background []byte `json:"-"`
	Scale      string `json:"scale"`
	Offset     string `json:"offset"`
	OutputSize string `json:"outputSize"`
}

// Job is one caller-requested conversion or composition unit of work.
type Job struct {
	ID          string            `json:"id"`
	Kind        JobKind           `json:"kind"`
	Input       []byte            `json:"-"`
	Params      EncodeParams      `json:"params"`
	Composite   *CompositeOptions `json:"composite,omitempty"`
	AutoTrim    bool              `json:"autoTrim"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// Settings contains persisted runtime configuration.
type Settings struct {
	LocalAssetDir string `json:"localAssetDir"`
	PrimaryMirror string `json:"primaryMirror"`
	BackupMirror  string `json:"backupMirror"`
	RetryAttempts int    `json:"retryAttempts"`
	WarmupSeconds int    `json:"warmupSeconds"`
	GraceSeconds  int    `json:"graceSeconds"`
	RunnerPath    string `json:"runnerPath"`
	CacheDir      string `json:"cacheDir"`
	OutputDir     string `json:"outputDir"`
}
