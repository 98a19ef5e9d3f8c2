// Package transfer moves a finished artifact into the destination store.
package transfer

import (
	"context"
	"fmt"

	"github.com/galaxyproject/depotsync/module/mirror/types"
)

// Transferer sends the file at localPath to the destination store under the
// name destination. A successful Send leaves the artifact fully visible at
// the destination; a failed one leaves no partial artifact under that name.
type Transferer interface {
	Send(ctx context.Context, localPath, destination string) error
}

// New returns the transferer selected by cfg.
func New(cfg types.TransferConfig) (Transferer, error) {
	switch cfg.Type {
	case types.RSYNC:
		return NewRsync(cfg), nil
	case types.SSH:
		return NewSSH(cfg)
	case types.DIRECTORY:
		return NewDir(cfg.Target), nil
	default:
		return nil, fmt.Errorf("transfer %q not supported", cfg.Type)
	}
}
