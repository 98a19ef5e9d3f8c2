package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenylist(t *testing.T) {
	d, err := NewDenylist("bioconductor-", "*--py27*", "", "# comment", "  ")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	tests := []struct {
		name   string
		input  string
		denied bool
	}{
		{name: "prefix entry", input: "bioconductor-limma:3.1--r1", denied: true},
		{name: "glob entry", input: "pysam:0.9--py27_1", denied: true},
		{name: "prefix must be at start", input: "r-bioconductor-x:1", denied: false},
		{name: "unrelated", input: "samtools:1.9--h91753b0_8", denied: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.denied, d.Denied(tt.input))
		})
	}
}

func TestDenylistNil(t *testing.T) {
	var d *Denylist
	assert.False(t, d.Denied("anything"))
	assert.Equal(t, 0, d.Len())
}

func TestLoadDenylist(t *testing.T) {
	t.Run("reads file and extra entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skip.list")
		require.NoError(t, os.WriteFile(path, []byte("# skipped tools\nblast\n\nmulti*:2*\n"), 0o644))

		d, err := LoadDenylist(path, "hmmer")
		require.NoError(t, err)
		assert.Equal(t, 3, d.Len())
		assert.True(t, d.Denied("blast:2.2--0"))
		assert.True(t, d.Denied("hmmer:3.1--1"))
		assert.True(t, d.Denied("multiqc:2.0--py_0"))
		assert.False(t, d.Denied("multiqc:1.7--py_0"))
	})
	t.Run("empty path", func(t *testing.T) {
		d, err := LoadDenylist("")
		require.NoError(t, err)
		assert.Equal(t, 0, d.Len())
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDenylist(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
	t.Run("invalid glob", func(t *testing.T) {
		_, err := NewDenylist("foo[*")
		assert.Error(t, err)
	})
}

func TestHasAnyPrefix(t *testing.T) {
	assert.True(t, HasAnyPrefix("bioconductor-deseq2:1", []string{"bioconductor"}))
	assert.False(t, HasAnyPrefix("samtools:1", []string{"bioconductor", ""}))
	assert.False(t, HasAnyPrefix("samtools:1", nil))
}

func TestLocators(t *testing.T) {
	assert.Equal(t, "quay.io/biocontainers/samtools:1.9", GenImageRef("quay.io/", "/biocontainers/", "samtools:1.9"))
	assert.Equal(t, "quay.io", GenImageRef("quay.io", ""))
	assert.Equal(t, "docker://quay.io/x:1", DockerLocator("quay.io/x:1"))
	assert.Equal(t, "docker://quay.io/x:1", DockerLocator("docker://quay.io/x:1"))
	assert.Equal(t, "quay.io/x:1", TrimTransport("docker://quay.io/x:1"))
	assert.Equal(t, "quay.io/x:1", TrimTransport("quay.io/x:1"))
}
