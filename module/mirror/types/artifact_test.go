package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArtifactRef(t *testing.T) {
	ref, err := NewArtifactRef("  samtools:1.9--h91753b0_8 ", "docker://quay.io/biocontainers/samtools:1.9--h91753b0_8")
	require.NoError(t, err)
	assert.Equal(t, "samtools:1.9--h91753b0_8", ref.Name())
	assert.Equal(t, "docker://quay.io/biocontainers/samtools:1.9--h91753b0_8", ref.SourceLocator())
	assert.Equal(t, "samtools:1.9--h91753b0_8", DiffKey(ref))

	_, err = NewArtifactRef(" ", "x")
	assert.ErrorIs(t, err, ErrEmptyArtifactName)

	assert.Panics(t, func() { MustArtifactRef("", "") })
}

func TestSnapshot(t *testing.T) {
	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := NewSnapshot(SideSource, MustArtifactRef("a:1", "l1"), MustArtifactRef("a:1", "l2"))
		assert.True(t, errors.Is(err, ErrDuplicateArtifact))
	})
	t.Run("names are sorted", func(t *testing.T) {
		s, err := NewSnapshot(SideSource, MustArtifactRef("c:1", ""), MustArtifactRef("a:1", ""), MustArtifactRef("b:1", ""))
		require.NoError(t, err)
		assert.Equal(t, []string{"a:1", "b:1", "c:1"}, s.Names())
		refs := s.Refs()
		require.Len(t, refs, 3)
		assert.Equal(t, "a:1", refs[0].Name())
		assert.Equal(t, 3, s.Len())
		assert.True(t, s.Has("b:1"))
		_, ok := s.Get("d:1")
		assert.False(t, ok)
	})
	t.Run("add after construction", func(t *testing.T) {
		s := EmptySnapshot(SideDestination)
		require.NoError(t, s.Add(MustArtifactRef("a:1", "")))
		assert.Error(t, s.Add(MustArtifactRef("a:1", "other")))
		assert.Equal(t, SideDestination, s.Side())
	})
	t.Run("nil snapshot is empty", func(t *testing.T) {
		var s *Snapshot
		assert.Equal(t, 0, s.Len())
		assert.False(t, s.Has("a"))
		assert.Empty(t, s.Refs())
	})
}
