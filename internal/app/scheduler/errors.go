package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	// ErrAlreadyRunning is returned synchronously when a job is in progress.
	// Requests are never queued behind a running job.
	ErrAlreadyRunning = errors.New("recalculation already running")
	// ErrRejected means the job queue refused the job, usually because the
	// scheduler is stopping.
	ErrRejected = errors.New("recalculation job rejected")
)
