package types

import (
	"fmt"
	"time"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusInFlight  Status = "InFlight"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusAbandoned Status = "Abandoned"
	// StatusSkipped is only ever used for reporting: the item was never admitted.
	StatusSkipped Status = "Skipped"
)

// IsTerminal reports whether the status ends the life of a work item.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusAbandoned || s == StatusSkipped
}

func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInFlight || to == StatusAbandoned
	case StatusInFlight:
		return to == StatusSucceeded || to == StatusFailed || to == StatusAbandoned
	case StatusFailed:
		return to == StatusPending || to == StatusAbandoned
	default:
		return false
	}
}

// WorkItem is one artifact selected for processing. It is owned by whichever
// component is currently responsible for it and is never shared between
// goroutines.
type WorkItem struct {
	Ref     ArtifactRef
	Attempt int
	Status  Status
	// LastError is the error of the most recent failed attempt.
	LastError error

	invocations int
}

func NewWorkItem(ref ArtifactRef) *WorkItem {
	return &WorkItem{Ref: ref, Status: StatusPending}
}

func (w *WorkItem) Name() string { return w.Ref.Name() }

// Transition moves the item to the given status or returns an error if the
// move is not allowed. Failed -> Pending increments the attempt counter.
func (w *WorkItem) Transition(to Status) error {
	if !allowedTransition(w.Status, to) {
		return fmt.Errorf("invalid transition for %q: %s -> %s", w.Name(), w.Status, to)
	}
	if w.Status == StatusFailed && to == StatusPending {
		w.Attempt++
	}
	if to == StatusInFlight {
		w.invocations++
	}
	w.Status = to
	return nil
}

// Attempts is the number of executor invocations made for the item so far.
func (w *WorkItem) Attempts() int {
	return w.invocations
}

// Outcome is what an executor reports for one attempt.
type Outcome struct {
	Status   Status
	Kind     errors.Kind
	Err      error
	Duration time.Duration
}

func Succeeded(d time.Duration) Outcome {
	return Outcome{Status: StatusSucceeded, Duration: d}
}

func Failed(err error, d time.Duration) Outcome {
	return Outcome{Status: StatusFailed, Kind: errors.KindOf(err), Err: err, Duration: d}
}
