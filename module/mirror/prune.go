package mirror

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

// Build is one parsed "tool:version--buildstring_number" image name.
type Build struct {
	Name        string `json:"name"`
	Package     string `json:"package"`
	BuildString string `json:"build_string"`
	BuildNumber int    `json:"build_number"`
}

// ParseBuild splits an image name into package and build. Names without a
// "--string_number" build part are not builds.
func ParseBuild(name string) (Build, bool) {
	i := strings.LastIndex(name, "--")
	if i < 0 {
		return Build{}, false
	}
	pkg, build := name[:i], name[i+2:]
	j := strings.LastIndex(build, "_")
	if j < 0 {
		return Build{}, false
	}
	number, err := strconv.Atoi(build[j+1:])
	if err != nil {
		return Build{}, false
	}
	return Build{Name: name, Package: pkg, BuildString: build[:j], BuildNumber: number}, true
}

// OldBuilds returns the builds superseded by a newer build of the same
// package: highest build number first, build string as the tie breaker.
// The result is sorted by name.
func OldBuilds(names []string) []Build {
	byPackage := map[string][]Build{}
	for _, name := range names {
		if b, ok := ParseBuild(name); ok {
			byPackage[b.Package] = append(byPackage[b.Package], b)
		}
	}

	var old []Build
	for _, builds := range byPackage {
		if len(builds) < 2 {
			continue
		}
		sort.Slice(builds, func(i, j int) bool {
			if builds[i].BuildNumber != builds[j].BuildNumber {
				return builds[i].BuildNumber < builds[j].BuildNumber
			}
			return builds[i].BuildString < builds[j].BuildString
		})
		old = append(old, builds[:len(builds)-1]...)
	}
	sort.Slice(old, func(i, j int) bool { return old[i].Name < old[j].Name })
	return old
}

// OldBuilds lists the destination and reports its superseded builds.
func (s *Service) OldBuilds(ctx context.Context) ([]Build, error) {
	snap, err := s.dest.ListArtifacts(ctx)
	if err != nil {
		return nil, errors.Fatal("list destination", err)
	}
	old := OldBuilds(snap.Names())
	s.logger.Info().Int("artifacts", snap.Len()).Int("old_builds", len(old)).Msg("Scanned destination for old builds")
	return old, nil
}
