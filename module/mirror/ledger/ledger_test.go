package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/module/mirror/types"
)

func record(run, name string, status types.Status, attempts int) types.RunRecord {
	return types.RunRecord{RunID: run, Name: name, Status: status, Attempts: attempts, Timestamp: time.Now().UTC()}
}

func TestAppendAndRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.jsonl")
	l, err := Open(path, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, l.Append(record("r1", "a:1", types.StatusSucceeded, 1)))
	require.NoError(t, l.Append(record("r1", "b:1", types.StatusAbandoned, 2)))

	recs, err := l.Records()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a:1", recs[0].Name)
	assert.Equal(t, types.StatusAbandoned, recs[1].Status)
	assert.Equal(t, 2, recs[1].Attempts)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Append(record("r1", "c:1", types.StatusSucceeded, 1)), ErrClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOpenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	first, err := Open(path)
	require.NoError(t, err)

	_, err = Open(path)
	assert.True(t, errors.Is(err, ErrLocked), "expected ErrLocked, got %v", err)

	require.NoError(t, first.Close())
	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestReadRecordsSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	content := `{"run_id":"r1","name":"a:1","status":"Succeeded","attempts":1,"timestamp":"2024-05-01T10:00:00Z","duration_ms":10}
{"run_id":"r1","name":"b:1","status":"Aband
not json at all

{"run_id":"r1","name":"c:1","status":"Abandoned","attempts":2,"timestamp":"2024-05-01T10:00:01Z","duration_ms":20}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	recs, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c:1", recs[1].Name)
	assert.Equal(t, 20*time.Millisecond, recs[1].Duration)
}

func TestLoadAbandoned(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		names, err := LoadAbandoned(filepath.Join(t.TempDir(), "none.jsonl"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})
	t.Run("latest record wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.jsonl")
		l, err := Open(path)
		require.NoError(t, err)
		for _, rec := range []types.RunRecord{
			record("r1", "x:1", types.StatusAbandoned, 2),
			record("r1", "y:1", types.StatusAbandoned, 2),
			record("r1", "z:1", types.StatusSucceeded, 1),
			record("r2", "x:1", types.StatusSucceeded, 1),
			record("r2", "w:1", types.StatusAbandoned, 1),
			record("r2", "y:1", types.StatusSkipped, 0),
		} {
			require.NoError(t, l.Append(rec))
		}
		require.NoError(t, l.Close())

		names, err := LoadAbandoned(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"w:1", "y:1"}, names)
	})
}

func TestForRun(t *testing.T) {
	recs := []types.RunRecord{
		record("r1", "a", types.StatusSucceeded, 1),
		record("r2", "b", types.StatusSucceeded, 1),
		record("r2", "c", types.StatusAbandoned, 2),
	}
	assert.Equal(t, []string{"r1", "r2"}, RunIDs(recs))

	id, last := ForRun(recs, "")
	assert.Equal(t, "r2", id)
	assert.Len(t, last, 2)

	id, first := ForRun(recs, "r1")
	assert.Equal(t, "r1", id)
	assert.Len(t, first, 1)

	id, none := ForRun(nil, "")
	assert.Empty(t, id)
	assert.Empty(t, none)
}
