package downloader

import "serial2epub/model"

// Status is the final state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Outcome is how a single chapter resolved.
type Outcome string

const (
	OutcomeFetched Outcome = "fetched"
	OutcomeCached  Outcome = "cached"
	OutcomeFailed  Outcome = "failed"
)

// Event reports progress. One event is emitted per resolved chapter in chapter order, then a
// single event with Done set.
type Event struct {
	RunId string
	// Index is the 0-based position within the selection.
	Index   int
	Total   int
	Ref     model.ChapterRef
	Outcome Outcome
	Err     error

	Done     bool
	Status   Status
	Resolved int
	Failed   int
}

// ProgressFunc receives events on the run's goroutine; it must not block for long.
type ProgressFunc func(Event)
