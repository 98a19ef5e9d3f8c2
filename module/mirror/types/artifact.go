package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrDuplicateArtifact = errors.New("duplicate artifact name in snapshot")
	ErrEmptyArtifactName = errors.New("artifact name cannot be empty")
)

// Side names which end of the mirror a snapshot was taken from
type Side string

var (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// ArtifactRef identifies one artifact. It is immutable once constructed.
type ArtifactRef struct {
	name          string
	sourceLocator string
}

// NewArtifactRef creates a reference. name is unique within a registry namespace
// (every tag is its own name, e.g. "samtools:1.9--h91753b0_8") and locator is an
// address the conversion tool can resolve, e.g. "docker://quay.io/biocontainers/samtools:1.9--h91753b0_8".
func NewArtifactRef(name, locator string) (ArtifactRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ArtifactRef{}, ErrEmptyArtifactName
	}
	return ArtifactRef{name: name, sourceLocator: locator}, nil
}

// MustArtifactRef is NewArtifactRef for static input. It panics on an empty name.
func MustArtifactRef(name, locator string) ArtifactRef {
	ref, err := NewArtifactRef(name, locator)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r ArtifactRef) Name() string          { return r.name }
func (r ArtifactRef) SourceLocator() string { return r.sourceLocator }

func (r ArtifactRef) String() string {
	if r.sourceLocator == "" {
		return r.name
	}
	return fmt.Sprintf("%s (%s)", r.name, r.sourceLocator)
}

// DiffKey is the key used to compare two snapshots. It is always the artifact
// name: two listings taken at different times may report different locators for
// the same logical artifact.
func DiffKey(ref ArtifactRef) string {
	return ref.name
}

// Snapshot is the set of artifacts observed on one side at one point in time.
// No two elements share a name.
type Snapshot struct {
	side  Side
	items map[string]ArtifactRef
}

// NewSnapshot builds a snapshot and rejects duplicate names.
func NewSnapshot(side Side, refs ...ArtifactRef) (*Snapshot, error) {
	s := &Snapshot{side: side, items: make(map[string]ArtifactRef, len(refs))}
	for _, ref := range refs {
		if err := s.Add(ref); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EmptySnapshot returns a snapshot with no artifacts.
func EmptySnapshot(side Side) *Snapshot {
	return &Snapshot{side: side, items: map[string]ArtifactRef{}}
}

// Add inserts ref. Adding a name that is already present is an error.
func (s *Snapshot) Add(ref ArtifactRef) error {
	if ref.name == "" {
		return ErrEmptyArtifactName
	}
	key := DiffKey(ref)
	if _, exists := s.items[key]; exists {
		return fmt.Errorf("%w: %s (%s)", ErrDuplicateArtifact, key, s.side)
	}
	s.items[key] = ref
	return nil
}

func (s *Snapshot) Side() Side { return s.side }

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Snapshot) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[name]
	return ok
}

func (s *Snapshot) Get(name string) (ArtifactRef, bool) {
	if s == nil {
		return ArtifactRef{}, false
	}
	ref, ok := s.items[name]
	return ref, ok
}

// Names returns every name in lexicographic order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns every reference ordered by name.
func (s *Snapshot) Refs() []ArtifactRef {
	names := s.Names()
	refs := make([]ArtifactRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, s.items[name])
	}
	return refs
}
