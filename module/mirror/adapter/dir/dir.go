// Package dir lists the artifacts stored in a local directory.
package dir

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	adp "github.com/galaxyproject/depotsync/module/mirror/adapter"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

func init() {
	if err := adp.RegisterFactory(types.DIR, new(factory)); err != nil {
		return
	}
}

type factory struct{}

func (f factory) Create(ctx context.Context, config types.ListerConfig, env adp.Env) (adp.Lister, error) {
	return newLister(config, env), nil
}

type lister struct {
	root   string
	suffix string
	side   types.Side
}

func newLister(config types.ListerConfig, env adp.Env) *lister {
	side := env.Side
	if side == "" {
		side = types.SideDestination
	}
	return &lister{root: config.Path, suffix: config.Suffix, side: side}
}

// ListArtifacts returns every visible regular file. Hidden files are partial
// uploads and are left out. A missing directory is an empty depot.
func (l *lister) ListArtifacts(ctx context.Context) (*types.Snapshot, error) {
	snap := types.EmptySnapshot(l.side)
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, errors.NewFileError(l.root, "list", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if l.suffix != "" {
			if !strings.HasSuffix(name, l.suffix) {
				continue
			}
			name = strings.TrimSuffix(name, l.suffix)
		}
		if snap.Has(name) {
			continue
		}
		if err := snap.Add(types.MustArtifactRef(name, filepath.Join(l.root, e.Name()))); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
