package cron

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduler operations.
var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("cron: job not found")

	// ErrJobExists indicates a job with the same name already exists.
	ErrJobExists = errors.New("cron: job already exists")

	// ErrJobRunning indicates the job is already executing.
	ErrJobRunning = errors.New("cron: job already running")
)

// InvalidScheduleError indicates an invalid cron schedule expression.
type InvalidScheduleError struct {
	Schedule string
	Err      error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("cron: invalid schedule %q: %v", e.Schedule, e.Err)
}

func (e *InvalidScheduleError) Unwrap() error {
	return e.Err
}
