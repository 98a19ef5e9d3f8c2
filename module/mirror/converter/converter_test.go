package converter

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

const fakeSingularity = `#!/bin/sh
out=""
src=""
for a in "$@"; do out="$src"; src="$a"; done
case "$src" in
  *missing*) echo "FATAL: Unable to handle docker uri: manifest unknown" >&2; exit 255 ;;
  *flaky*) echo "FATAL: connection reset by peer" >&2; exit 255 ;;
esac
[ -d "$SINGULARITY_CACHEDIR" ] || { echo "no cache dir" >&2; exit 9; }
echo "$src" > "$out"
`

func writeFakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "singularity")
	require.NoError(t, os.WriteFile(path, []byte(fakeSingularity), 0o755))
	return path
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "samtools:1.9--h91753b0_8", OutputName("docker://quay.io/biocontainers/samtools:1.9--h91753b0_8"))
	assert.Equal(t, "samtools:1.9", OutputName("samtools:1.9"))
	assert.Equal(t, "x_sha256:abc", OutputName("quay.io/x@sha256:abc"))
}

func TestSingularityConvert(t *testing.T) {
	conv := NewSingularity(writeFakeBinary(t), nil, nil)

	t.Run("builds into the work dir", func(t *testing.T) {
		workDir := t.TempDir()
		out, err := conv.Convert(context.Background(), "docker://quay.io/biocontainers/samtools:1.9--h91753b0_8", workDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(workDir, "samtools:1.9--h91753b0_8"), out)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "docker://quay.io/biocontainers/samtools:1.9--h91753b0_8", strings.TrimSpace(string(data)))
	})
	t.Run("bare reference gets the docker transport", func(t *testing.T) {
		out, err := conv.Convert(context.Background(), "quay.io/biocontainers/abyss:2.0--1", t.TempDir())
		require.NoError(t, err)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "docker://quay.io/biocontainers/abyss:2.0--1", strings.TrimSpace(string(data)))
	})
	t.Run("missing image is permanent", func(t *testing.T) {
		_, err := conv.Convert(context.Background(), "docker://quay.io/biocontainers/missing:1", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, errors.KindPermanent, errors.KindOf(err))
	})
	t.Run("network failure is transient", func(t *testing.T) {
		_, err := conv.Convert(context.Background(), "docker://quay.io/biocontainers/flaky:1", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, errors.KindTransient, errors.KindOf(err))
	})
}

func TestOCITarballConvert(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	img, err := random.Image(256, 1)
	require.NoError(t, err)
	require.NoError(t, crane.Push(img, host+"/biocontainers/samtools:1.9"))

	conv := NewOCITarball(types.ListerConfig{Registry: host}, "depotsync-test")

	workDir := t.TempDir()
	out, err := conv.Convert(context.Background(), "docker://"+host+"/biocontainers/samtools:1.9", workDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "samtools:1.9.tar"), out)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = conv.Convert(context.Background(), host+"/biocontainers/samtools:0.0", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.KindPermanent, errors.KindOf(err))
}

func TestNew(t *testing.T) {
	c, err := New(types.ConverterConfig{Type: types.SINGULARITY}, types.ListerConfig{}, "")
	require.NoError(t, err)
	assert.IsType(t, &Singularity{}, c)

	c, err = New(types.ConverterConfig{Type: types.OCI_TARBALL}, types.ListerConfig{}, "")
	require.NoError(t, err)
	assert.IsType(t, &OCITarball{}, c)

	_, err = New(types.ConverterConfig{Type: "PODMAN"}, types.ListerConfig{}, "")
	assert.Error(t, err)
}
