package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

func writeLedger(t *testing.T, records ...types.RunRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	printer.Out = &out
	config.Global.Format = "json"
	t.Cleanup(func() {
		printer.Out = os.Stdout
		config.Global.Format = ""
	})

	cmd := GetRootCmd(cmdutils.NewFactory())
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestLedgerCommands(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeLedger(t,
		types.RunRecord{RunID: "run-1", Name: "a:1", Status: types.StatusSucceeded, Attempts: 1, Timestamp: now},
		types.RunRecord{RunID: "run-1", Name: "b:1", Status: types.StatusAbandoned, Attempts: 2, Kind: "transient", Error: "timeout", Timestamp: now},
		types.RunRecord{RunID: "run-2", Name: "c:1", Status: types.StatusAbandoned, Attempts: 1, Kind: "permanent", Error: "manifest unknown", Timestamp: now},
		types.RunRecord{RunID: "run-2", Name: "d:1", Status: types.StatusSkipped, Timestamp: now},
	)

	t.Run("show defaults to the latest run", func(t *testing.T) {
		var got struct {
			Summary types.RunSummary  `json:"summary"`
			Records []types.RunRecord `json:"records"`
		}
		require.NoError(t, json.Unmarshal([]byte(execute(t, "show", "--ledger", path)), &got))
		assert.Equal(t, "run-2", got.Summary.RunID)
		assert.Equal(t, 1, got.Summary.Abandoned)
		assert.Equal(t, 1, got.Summary.Skipped)
		assert.Len(t, got.Records, 2)
	})

	t.Run("show selects a run", func(t *testing.T) {
		var got struct {
			Summary types.RunSummary `json:"summary"`
		}
		require.NoError(t, json.Unmarshal([]byte(execute(t, "show", "--ledger", path, "--run-id", "run-1")), &got))
		assert.Equal(t, 1, got.Summary.Succeeded)
		assert.Equal(t, []string{"b:1"}, got.Summary.AbandonedNames)
		assert.Equal(t, 3, got.Summary.Attempts)
	})

	t.Run("show unknown run", func(t *testing.T) {
		config.Global.Format = "json"
		defer func() { config.Global.Format = "" }()
		cmd := GetRootCmd(cmdutils.NewFactory())
		cmd.SetArgs([]string{"show", "--ledger", path, "--run-id", "nope"})
		cmd.SilenceUsage = true
		assert.Error(t, cmd.Execute())
	})

	t.Run("runs", func(t *testing.T) {
		var got []types.RunSummary
		require.NoError(t, json.Unmarshal([]byte(execute(t, "runs", "--ledger", path)), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "run-1", got[0].RunID)
		assert.Equal(t, 2, got[0].Admitted)
		assert.Equal(t, "run-2", got[1].RunID)
	})

	t.Run("abandoned", func(t *testing.T) {
		var got []string
		require.NoError(t, json.Unmarshal([]byte(execute(t, "abandoned", "--ledger", path)), &got))
		assert.Equal(t, []string{"b:1", "c:1"}, got)
	})

	t.Run("abandoned on a missing ledger", func(t *testing.T) {
		var got []string
		missing := filepath.Join(t.TempDir(), "none.jsonl")
		require.NoError(t, json.Unmarshal([]byte(execute(t, "abandoned", "--ledger", missing)), &got))
		assert.Empty(t, got)
	})
}

func TestLedgerPath(t *testing.T) {
	f := &cmdutils.Factory{Config: func() (*types.Config, error) {
		return nil, os.ErrNotExist
	}}
	assert.Equal(t, "x.jsonl", ledgerPath(f, "x.jsonl"))
	assert.Equal(t, defaultLedgerPath, ledgerPath(f, ""))

	f.Config = func() (*types.Config, error) {
		return &types.Config{Ledger: types.LedgerConfig{Path: "/var/lib/depotsync/ledger.jsonl"}}, nil
	}
	assert.Equal(t, "/var/lib/depotsync/ledger.jsonl", ledgerPath(f, ""))
}
