// Package ledger persists the terminal outcome of every work item as one JSON
// object per line, so that a later run can resume what an earlier one abandoned.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/galaxyproject/depotsync/module/mirror/types"
)

var (
	ErrLocked = errors.New("ledger is locked by another run")
	ErrClosed = errors.New("ledger is closed")
)

// maxLineSize bounds one record; error messages from conversion tools can be long.
const maxLineSize = 1 << 20

// Ledger is an append-only JSON-lines file guarded by an advisory lock.
type Ledger struct {
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	file *os.File
	lock *flock.Flock
}

type Option func(*Ledger)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Open creates the ledger file if needed and takes its lock. It fails with
// ErrLocked if another process holds the lock.
func Open(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{path: path, logger: log.Logger}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l.lock = flock.New(path + ".lock")
	locked, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = l.lock.Unlock()
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	l.file = f
	l.logger.Debug().Str("path", path).Msg("Ledger opened")
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

// Append writes one record and syncs it to disk before returning.
func (l *Ledger) Append(rec types.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", rec.Name, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to append record for %s: %w", rec.Name, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Records reads back every valid record in the file.
func (l *Ledger) Records() ([]types.RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readRecords(l.path, l.logger)
}

// Close releases the file and the lock. Closing twice is a no-op.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if uerr := l.lock.Unlock(); uerr != nil {
		err = errors.Join(err, uerr)
	}
	return err
}

// ReadRecords reads a ledger without locking it. A missing file holds no records.
func ReadRecords(path string) ([]types.RunRecord, error) {
	return readRecords(path, log.Logger)
}

func readRecords(path string, logger zerolog.Logger) ([]types.RunRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	defer f.Close()
	return decode(f, logger)
}

func decode(r io.Reader, logger zerolog.Logger) ([]types.RunRecord, error) {
	var records []types.RunRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec types.RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.Name == "" {
			logger.Warn().Int("line", line).Err(err).Msg("Skipping corrupt ledger line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read ledger: %w", err)
	}
	return records, nil
}

// LoadAbandoned returns, sorted, every name whose most recent record is Abandoned.
func LoadAbandoned(path string) ([]string, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return Abandoned(records), nil
}

// Abandoned is LoadAbandoned over records already in memory. Records are
// taken in file order, so the last one for a name wins.
func Abandoned(records []types.RunRecord) []string {
	latest := make(map[string]types.Status, len(records))
	for _, rec := range records {
		if rec.Status == types.StatusSkipped {
			continue
		}
		latest[rec.Name] = rec.Status
	}
	var names []string
	for name, status := range latest {
		if status == types.StatusAbandoned {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RunIDs lists the runs found in records, oldest first.
func RunIDs(records []types.RunRecord) []string {
	seen := map[string]bool{}
	var ids []string
	for _, rec := range records {
		if !seen[rec.RunID] {
			seen[rec.RunID] = true
			ids = append(ids, rec.RunID)
		}
	}
	return ids
}

// ForRun filters records by run. An empty runID selects the last run in the file.
func ForRun(records []types.RunRecord, runID string) (string, []types.RunRecord) {
	if runID == "" {
		ids := RunIDs(records)
		if len(ids) == 0 {
			return "", nil
		}
		runID = ids[len(ids)-1]
	}
	var out []types.RunRecord
	for _, rec := range records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return runID, out
}
