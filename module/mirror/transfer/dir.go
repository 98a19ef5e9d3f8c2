package transfer

import (
	"context"
	"path/filepath"

	"github.com/galaxyproject/depotsync/util/common/errors"
	"github.com/galaxyproject/depotsync/util/common/fileutil"
)

// Dir copies artifacts into a local directory, for depots served from a
// mounted filesystem.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Send(ctx context.Context, localPath, destination string) error {
	if err := ctx.Err(); err != nil {
		return errors.Transient("send", destination, err)
	}
	if filepath.Base(destination) != destination {
		return errors.Permanent("send", destination, errors.ErrInvalidArgument)
	}
	if err := fileutil.CopyFileAtomic(localPath, filepath.Join(d.root, destination)); err != nil {
		return errors.Classified("send", destination, err)
	}
	return nil
}
