package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "samtools:1.9--h91753b0_8")
	require.NoError(t, os.WriteFile(src, []byte("image"), 0o600))

	dst := filepath.Join(dir, "depot", "samtools:1.9--h91753b0_8")
	require.NoError(t, CopyFileAtomic(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial file may be left behind")

	assert.Error(t, CopyFileAtomic(filepath.Join(dir, "missing"), dst))
	assert.Error(t, CopyFileAtomic(dir, dst))
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "one"), make([]byte, 100), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "two"), make([]byte, 50), 0o600))

	size, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(150), size)

	size, err = DirSize(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestWriteLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	require.NoError(t, WriteLines(filepath.Join(dir, "diff.log"), []string{"a:1", "b:1"}))

	data, err := os.ReadFile(filepath.Join(dir, "diff.log"))
	require.NoError(t, err)
	assert.Equal(t, "a:1\nb:1\n", string(data))

	require.NoError(t, WriteLines(filepath.Join(dir, "diff.log"), nil))
	data, err = os.ReadFile(filepath.Join(dir, "diff.log"))
	require.NoError(t, err)
	assert.Empty(t, data)
}
