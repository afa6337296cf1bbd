package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation malformed ingress payload, never enqueued
	ErrValidation = errors.New("validation error")
	// ErrNotFound no image in the flow, or unknown analysis id
	ErrNotFound = errors.New("not found")
	// ErrExtraction one module failed; absorbed into a failure marker
	ErrExtraction = errors.New("extraction failure")
	// ErrAssessmentService reasoning service unreachable or errored
	ErrAssessmentService = errors.New("assessment service error")
	// ErrPersistence result store write failed
	ErrPersistence = errors.New("persistence error")
	// ErrQueueFull queue stayed full for the whole enqueue timeout
	ErrQueueFull = errors.New("analysis queue full")
	// ErrQueueClosed queue no longer accepts jobs
	ErrQueueClosed = errors.New("analysis queue closed")
)

// StageError carries the pipeline stage a job failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or StageFailed when none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageFailed
}
