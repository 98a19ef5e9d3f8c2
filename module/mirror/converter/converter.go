// Package converter turns a source image into the file that is stored at the
// destination.
package converter

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
)

// Converter builds the artifact for locator inside workDir and returns the
// path of the produced file. workDir is private to the call and is removed by
// the caller afterwards, so it may also serve as a cache.
type Converter interface {
	Convert(ctx context.Context, locator, workDir string) (string, error)
}

// New returns the converter selected by cfg.
func New(cfg types.ConverterConfig, registry types.ListerConfig, userAgent string) (Converter, error) {
	switch cfg.Type {
	case types.SINGULARITY:
		return NewSingularity(cfg.Binary, cfg.Args, cfg.Env), nil
	case types.OCI_TARBALL:
		return NewOCITarball(registry, userAgent), nil
	default:
		return nil, fmt.Errorf("converter %q not supported", cfg.Type)
	}
}

// OutputName is the file name an artifact gets at the destination: the last
// path element of its reference, e.g. "samtools:1.9--h91753b0_8".
func OutputName(locator string) string {
	ref := util.TrimTransport(locator)
	name := path.Base(ref)
	// digests contain ':' too, but '@' is not welcome in file names
	return strings.ReplaceAll(name, "@", "_")
}
