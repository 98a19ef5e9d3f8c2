package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
)

func snapshot(t *testing.T, side types.Side, names ...string) *types.Snapshot {
	t.Helper()
	s := types.EmptySnapshot(side)
	for _, n := range names {
		require.NoError(t, s.Add(types.MustArtifactRef(n, "docker://quay.io/biocontainers/"+n)))
	}
	return s
}

func TestComputeWorkSet(t *testing.T) {
	tests := []struct {
		name   string
		source []string
		dest   []string
		want   []string
	}{
		{name: "empty source", source: nil, dest: []string{"a:1"}, want: []string{}},
		{name: "empty destination backfills everything", source: []string{"b:1", "a:1"}, dest: nil, want: []string{"a:1", "b:1"}},
		{name: "in sync", source: []string{"a:1", "b:1"}, dest: []string{"b:1", "a:1"}, want: []string{}},
		{name: "destination extras ignored", source: []string{"a:1", "c:1"}, dest: []string{"a:1", "z:9"}, want: []string{"c:1"}},
		{name: "each tag is its own name", source: []string{"samtools:1.9--0", "samtools:1.10--0"}, dest: []string{"samtools:1.9--0"}, want: []string{"samtools:1.10--0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := ComputeWorkSet(snapshot(t, types.SideSource, tt.source...), snapshot(t, types.SideDestination, tt.dest...))
			names := make([]string, 0, len(work))
			for _, item := range work {
				names = append(names, item.Name())
				assert.Equal(t, types.StatusPending, item.Status)
				assert.Equal(t, 0, item.Attempt)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestComputeIgnoresLocator(t *testing.T) {
	src := types.EmptySnapshot(types.SideSource)
	require.NoError(t, src.Add(types.MustArtifactRef("a:1", "docker://quay.io/biocontainers/a:1")))
	dst := types.EmptySnapshot(types.SideDestination)
	require.NoError(t, dst.Add(types.MustArtifactRef("a:1", "https://depot.galaxyproject.org/singularity/a:1")))

	assert.Empty(t, ComputeWorkSet(src, dst))
}

func TestComputeDeterministic(t *testing.T) {
	names := []string{"z:1", "m:1", "a:1", "bioconductor-x:1", "q:2"}
	first := Compute(snapshot(t, types.SideSource, names...), types.EmptySnapshot(types.SideDestination)).Names()
	for i := 0; i < 5; i++ {
		again := Compute(snapshot(t, types.SideSource, names...), types.EmptySnapshot(types.SideDestination)).Names()
		assert.Equal(t, first, again)
	}
}

func TestComputeBands(t *testing.T) {
	deny, err := util.NewDenylist("blast", "*--py27*")
	require.NoError(t, err)

	src := snapshot(t, types.SideSource,
		"samtools:1.9--0", "bioconductor-limma:3--r1", "blast:2.2--0", "pysam:0.9--py27_1",
		"abyss:2.0--1", "bioconductor-deseq2:1--r1", "zlib:1.2--0", "multiqc:1.7--py_0")
	dst := snapshot(t, types.SideDestination, "abyss:2.0--1")

	plan := Compute(src, dst,
		WithDenylist(deny),
		WithDeferPrefixes("bioconductor"),
		WithResume("zlib:1.2--0", "bioconductor-limma:3--r1", "gone:1"),
	)

	assert.Equal(t, []string{
		"bioconductor-limma:3--r1", "zlib:1.2--0",
		"multiqc:1.7--py_0", "samtools:1.9--0",
		"bioconductor-deseq2:1--r1",
	}, plan.Names())
	assert.Equal(t, []string{"blast:2.2--0", "pysam:0.9--py27_1"}, plan.Denied)
	assert.Len(t, plan.Missing, 7)
	assert.Equal(t, 2, plan.Resumed)
	assert.Equal(t, 1, plan.Deferred)
}

func TestPresent(t *testing.T) {
	src := snapshot(t, types.SideSource, "b:1", "a:1", "c:1")
	dst := snapshot(t, types.SideDestination, "c:1", "a:1", "x:1")
	assert.Equal(t, []string{"a:1", "c:1"}, Present(src, dst))
}
