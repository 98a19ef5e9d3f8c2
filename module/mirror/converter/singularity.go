package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// Singularity builds a SIF image with the singularity (or apptainer) CLI.
type Singularity struct {
	binary string
	args   []string
	env    map[string]string
}

func NewSingularity(binary string, args []string, env map[string]string) *Singularity {
	if binary == "" {
		binary = "singularity"
	}
	return &Singularity{binary: binary, args: args, env: env}
}

func (s *Singularity) Convert(ctx context.Context, locator, workDir string) (string, error) {
	name := OutputName(locator)
	out := filepath.Join(workDir, name)
	cacheDir := filepath.Join(workDir, "cache")
	tmpDir := filepath.Join(workDir, "tmp")
	for _, dir := range []string{cacheDir, tmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Classified("convert", name, err)
		}
	}

	env := map[string]string{
		"SINGULARITY_CACHEDIR": cacheDir,
		"APPTAINER_CACHEDIR":   cacheDir,
		"SINGULARITY_TMPDIR":   tmpDir,
		"APPTAINER_TMPDIR":     tmpDir,
	}
	for k, v := range s.env {
		env[k] = v
	}

	args := append([]string{"build"}, s.args...)
	args = append(args, out, util.DockerLocator(locator))
	cmd := util.Command{Name: s.binary, Args: args, Env: env, Dir: workDir}
	if err := cmd.Run(ctx); err != nil {
		return "", errors.Classified("convert", name, err)
	}

	if info, err := os.Stat(out); err != nil || info.IsDir() {
		return "", errors.Transient("convert", name, fmt.Errorf("%s produced no image at %s", s.binary, out))
	}
	return out, nil
}
