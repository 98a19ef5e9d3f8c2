package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/module/mirror/converter"
	"github.com/galaxyproject/depotsync/module/mirror/engine"
	"github.com/galaxyproject/depotsync/module/mirror/transfer"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

type fakeConverter struct {
	err     error
	outside string
	noFile  bool
}

func (f *fakeConverter) Convert(ctx context.Context, locator, workDir string) (string, error) {
	// leave something in the cache dir, as singularity does
	if err := os.MkdirAll(filepath.Join(workDir, "cache"), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(workDir, "cache", "layer"), []byte("layer"), 0o600); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(workDir, converter.OutputName(locator))
	if f.outside != "" {
		out = filepath.Join(f.outside, converter.OutputName(locator))
	}
	if f.noFile {
		return out, nil
	}
	return out, os.WriteFile(out, []byte("image "+locator), 0o600)
}

type fakeTransferer struct {
	mu    sync.Mutex
	sent  map[string]string
	err   error
	block bool
}

func (f *fakeTransferer) Send(ctx context.Context, localPath, destination string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[destination] = string(data)
	return nil
}

func item(name string) types.WorkItem {
	w := types.NewWorkItem(types.MustArtifactRef(name, "docker://quay.io/biocontainers/"+name))
	_ = w.Transition(types.StatusInFlight)
	return *w
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch dir must be empty after Process")
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name      string
		conv      *fakeConverter
		tr        *fakeTransferer
		wantState types.Status
		wantKind  errors.Kind
	}{
		{
			name:      "success",
			conv:      &fakeConverter{},
			tr:        &fakeTransferer{},
			wantState: types.StatusSucceeded,
		},
		{
			name:      "converter manifest unknown",
			conv:      &fakeConverter{err: fmt.Errorf("FATAL: manifest unknown")},
			tr:        &fakeTransferer{},
			wantState: types.StatusFailed,
			wantKind:  errors.KindPermanent,
		},
		{
			name:      "converter out of disk",
			conv:      &fakeConverter{err: fmt.Errorf("write: no space left on device")},
			tr:        &fakeTransferer{},
			wantState: types.StatusFailed,
			wantKind:  errors.KindResource,
		},
		{
			name:      "converter produced nothing",
			conv:      &fakeConverter{noFile: true},
			tr:        &fakeTransferer{},
			wantState: types.StatusFailed,
			wantKind:  errors.KindTransient,
		},
		{
			name:      "send refused",
			conv:      &fakeConverter{},
			tr:        &fakeTransferer{err: errors.Permanent("send", "x", fmt.Errorf("permission denied"))},
			wantState: types.StatusFailed,
			wantKind:  errors.KindPermanent,
		},
		{
			name:      "send connection reset",
			conv:      &fakeConverter{},
			tr:        &fakeTransferer{err: fmt.Errorf("read: connection reset by peer")},
			wantState: types.StatusFailed,
			wantKind:  errors.KindTransient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := t.TempDir()
			b := New(tt.conv, tt.tr, scratch, WithLogger(zerolog.Nop()))

			out := b.Process(context.Background(), item("samtools:1.9--h91753b0_8"))
			assert.Equal(t, tt.wantState, out.Status)
			if tt.wantState == types.StatusFailed {
				require.Error(t, out.Err)
				assert.Equal(t, tt.wantKind, out.Kind)
			} else {
				assert.NoError(t, out.Err)
				assert.Equal(t, "image docker://quay.io/biocontainers/samtools:1.9--h91753b0_8", tt.tr.sent["samtools:1.9--h91753b0_8"])
			}
			assertEmpty(t, scratch)
		})
	}
}

func TestProcessRemovesOutputOutsideWorkDir(t *testing.T) {
	scratch := t.TempDir()
	elsewhere := t.TempDir()
	b := New(&fakeConverter{outside: elsewhere}, &fakeTransferer{err: fmt.Errorf("boom")}, scratch, WithLogger(zerolog.Nop()))

	out := b.Process(context.Background(), item("abyss:2.0--1"))
	assert.Equal(t, types.StatusFailed, out.Status)
	assertEmpty(t, scratch)
	assertEmpty(t, elsewhere)
}

func TestProcessTimeoutIsTransient(t *testing.T) {
	scratch := t.TempDir()
	b := New(&fakeConverter{}, &fakeTransferer{block: true}, scratch, WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := b.Process(ctx, item("abyss:2.0--1"))
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, errors.KindTransient, out.Kind)
	assertEmpty(t, scratch)
}

func TestProcessCreatesScratchDir(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "not", "yet")
	b := New(&fakeConverter{}, &fakeTransferer{}, scratch, WithLogger(zerolog.Nop()))
	out := b.Process(context.Background(), item("abyss:2.0--1"))
	assert.Equal(t, types.StatusSucceeded, out.Status)
	assertEmpty(t, scratch)
}

// The builder and a directory transferer driven by the engine: two missing
// images end up in the depot and the scratch dir stays empty.
func TestBuilderWithEngine(t *testing.T) {
	scratch := t.TempDir()
	depot := t.TempDir()
	b := New(&fakeConverter{}, transfer.NewDir(depot), scratch, WithLogger(zerolog.Nop()))

	work := []*types.WorkItem{
		types.NewWorkItem(types.MustArtifactRef("x:1--0", "docker://quay.io/biocontainers/x:1--0")),
		types.NewWorkItem(types.MustArtifactRef("y:2--0", "docker://quay.io/biocontainers/y:2--0")),
	}
	summary, err := engine.NewEngine(b,
		engine.WithConcurrency(2),
		engine.WithLogger(zerolog.Nop()),
	).Run(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	for _, name := range []string{"x:1--0", "y:2--0"} {
		data, err := os.ReadFile(filepath.Join(depot, name))
		require.NoError(t, err)
		assert.Equal(t, "image docker://quay.io/biocontainers/"+name, string(data))
	}
	assertEmpty(t, scratch)
}
