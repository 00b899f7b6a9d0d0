package jobs

import (
	"time"

	"alphapack/internal/services"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Kind names the pipeline a job ran.
type Kind string

const (
	KindPack    Kind = "pack"
	KindCarrier Kind = "carrier"
	KindUnpack  Kind = "unpack"
)

// Job is one recorded pipeline run.
type Job struct {
	ID              string
	Kind            Kind
	Status          Status
	InputPath       string
	OutputPath      string
	Stage           string
	ProgressPercent float64
	FramesDone      int
	FramesTotal     int
	OutputBytes     int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      time.Time
}

// Duration is the wall time from creation to finish, or to now while running.
func (j *Job) Duration() time.Duration {
	end := j.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(j.CreatedAt)
}

// Event is a warning or error recorded against a job.
type Event struct {
	ID        int64
	JobID     string
	Level     string
	Message   string
	EventType string
	CreatedAt time.Time
}

// StatusForError maps a pipeline result onto the terminal job status.
// Cancellation is not a failure.
func StatusForError(err error) Status {
	switch {
	case err == nil:
		return StatusSucceeded
	case services.IsCancellation(err):
		return StatusCancelled
	default:
		return StatusFailed
	}
}
