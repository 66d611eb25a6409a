// Package download owns the job lifecycle: records and their transitions,
// submission of single and batch jobs, execution of a job on a backend,
// batch aggregation and artifact cleanup.
package download

import (
	"time"
)

// Status is a job lifecycle state
type Status string

// Job status constants representing the job lifecycle
const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusTrimming    Status = "trimming"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Coarse progress hints reported with each status.
const (
	progressStart    = "0%"
	progressTrimming = "90%"
	progressUpload   = "95%"
	progressDone     = "100%"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusDownloading:
		return 1
	case StatusTrimming:
		return 2
	case StatusUploading:
		return 3
	case StatusCompleted:
		return 4
	default:
		return -1
	}
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record may move from one status to
// another. Failed is reachable from anywhere; otherwise status only moves
// forward.
func CanTransition(from, to Status) bool {
	if to == StatusFailed {
		return true
	}
	if from == StatusFailed || from == StatusCompleted {
		return from == to
	}
	if to.rank() < 0 || from.rank() < 0 {
		return false
	}
	return to.rank() >= from.rank()
}

// JobRecord is the persisted state of one download.
type JobRecord struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Progress  string `json:"progress"`
	Ready     bool   `json:"ready"`
	SourceURL string `json:"url"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	AudioOnly bool   `json:"audio_only"`
	Platform  string `json:"platform,omitempty"`
	Title     string `json:"title,omitempty"`
	Filename  string `json:"filename,omitempty"`
	LocalPath string `json:"filepath,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
	Error     string `json:"error,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *JobRecord) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// WantsTrim reports whether a trim window was requested for a video job.
func (j *JobRecord) WantsTrim() bool {
	return (j.StartTime != "" || j.EndTime != "") && !j.AudioOnly
}

// BatchRecord groups jobs submitted together. Its status is derived from
// the member records on read.
type BatchRecord struct {
	ID        string    `json:"batch_id"`
	JobIDs    []string  `json:"download_ids"`
	Total     int       `json:"total"`
	AudioOnly bool      `json:"audio_only"`
	CreatedAt time.Time `json:"created_at"`
}
