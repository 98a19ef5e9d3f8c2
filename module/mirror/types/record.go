package types

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

// RunRecord is the ledger entry written for every terminal work item.
type RunRecord struct {
	RunID     string        `json:"run_id"`
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`
	Kind      string        `json:"kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"-"`
}

type runRecordJSON RunRecord

// MarshalJSON writes the duration as milliseconds so the ledger stays readable.
func (r RunRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		runRecordJSON
		DurationMS int64 `json:"duration_ms"`
	}{runRecordJSON(r), r.Duration.Milliseconds()})
}

func (r *RunRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		runRecordJSON
		DurationMS int64 `json:"duration_ms"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = RunRecord(aux.runRecordJSON)
	r.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}

// NewRunRecord snapshots a terminal work item.
func NewRunRecord(runID string, item *WorkItem, at time.Time, d time.Duration) RunRecord {
	rec := RunRecord{
		RunID:     runID,
		Name:      item.Name(),
		Status:    item.Status,
		Attempts:  item.Attempts(),
		Timestamp: at.UTC(),
		Duration:  d,
	}
	if item.LastError != nil && item.Status != StatusSucceeded {
		rec.Error = item.LastError.Error()
		rec.Kind = errors.KindOf(item.LastError).String()
	}
	return rec
}

// RunSummary is reported once all items are terminal.
type RunSummary struct {
	RunID string `json:"run_id"`
	// Admitted counts the items that entered the queue, skipped duplicates excluded.
	Admitted  int `json:"admitted"`
	Succeeded int `json:"succeeded"`
	// Failed counts failed attempts, including those that were retried.
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	// Attempts is the total number of executor invocations.
	Attempts       int           `json:"attempts"`
	AbandonedNames []string      `json:"abandoned_names,omitempty"`
	Duration       time.Duration `json:"-"`
}

// HasAbandoned reports whether any item ended the run unfinished.
func (s RunSummary) HasAbandoned() bool {
	return s.Abandoned > 0
}

// Add folds one terminal record into the summary.
func (s *RunSummary) Add(rec RunRecord) {
	s.Attempts += rec.Attempts
	switch rec.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusAbandoned:
		s.Abandoned++
		s.AbandonedNames = append(s.AbandonedNames, rec.Name)
		sort.Strings(s.AbandonedNames)
	case StatusSkipped:
		s.Skipped++
	}
}

// Summarize rebuilds a summary from ledger records.
func Summarize(runID string, records []RunRecord) RunSummary {
	s := RunSummary{RunID: runID}
	for _, rec := range records {
		if runID != "" && rec.RunID != runID {
			continue
		}
		if rec.Status != StatusSkipped {
			s.Admitted++
		}
		s.Add(rec)
		if rec.Status == StatusAbandoned && rec.Attempts > 0 {
			s.Failed += rec.Attempts
		} else if rec.Status == StatusSucceeded && rec.Attempts > 1 {
			s.Failed += rec.Attempts - 1
		}
	}
	return s
}
