package entities

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TranscodeParams are passed through to ffmpeg unchanged.
type TranscodeParams struct {
	Format       string `json:"format"`
	Resolution   string `json:"resolution"`
	CRF          int    `json:"crf"`
	Preset       string `json:"preset"`
	ExtraFilters string `json:"extra_filters,omitempty"`
}

type Job struct {
	ID         string          `json:"job_id"`
	Owner      string          `json:"owner"`
	SourceRef  string          `json:"source_ref"`
	Params     TranscodeParams `json:"params"`
	Status     JobStatus       `json:"status"`
	OutputRef  string          `json:"output_ref,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
