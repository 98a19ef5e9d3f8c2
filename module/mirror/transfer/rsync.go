package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

var defaultRsyncArgs = []string{"-azq"}

// Rsync pushes files with the rsync CLI. rsync writes to a temporary name and
// renames on completion, so a failed push leaves no partial artifact.
type Rsync struct {
	binary string
	args   []string
	target string
}

func NewRsync(cfg types.TransferConfig) *Rsync {
	binary := cfg.Binary
	if binary == "" {
		binary = "rsync"
	}
	args := cfg.Args
	if len(args) == 0 {
		args = append([]string{}, defaultRsyncArgs...)
		if cfg.IdentityFile != "" {
			args = append(args, "-e", fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no", cfg.IdentityFile))
		}
	}
	return &Rsync{binary: binary, args: args, target: cfg.Target}
}

// Destination joins the configured target with a file name.
func (r *Rsync) Destination(name string) string {
	if strings.HasSuffix(r.target, "/") || strings.HasSuffix(r.target, ":") {
		return r.target + name
	}
	return r.target + "/" + name
}

func (r *Rsync) Send(ctx context.Context, localPath, destination string) error {
	args := append(append([]string{}, r.args...), localPath, r.Destination(destination))
	if err := (util.Command{Name: r.binary, Args: args}).Run(ctx); err != nil {
		return errors.Classified("send", destination, err)
	}
	return nil
}
