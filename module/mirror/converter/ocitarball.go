package converter

import (
	"context"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/crane"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// OCITarball pulls an image and saves it as a docker-loadable tarball.
type OCITarball struct {
	registry  types.ListerConfig
	userAgent string
	extra     []crane.Option
}

func NewOCITarball(registry types.ListerConfig, userAgent string, extra ...crane.Option) *OCITarball {
	return &OCITarball{registry: registry, userAgent: userAgent, extra: extra}
}

func (o *OCITarball) Convert(ctx context.Context, locator, workDir string) (string, error) {
	ref := util.TrimTransport(locator)
	name := OutputName(locator)
	creds := o.registry.Credentials
	opts := util.CraneOptions(ctx, o.registry.Registry, creds.Username, creds.Password, creds.Token, o.registry.Insecure, o.userAgent)
	opts = append(opts, o.extra...)

	img, err := crane.Pull(ref, opts...)
	if err != nil {
		return "", errors.NewItemError("pull", name, util.RegistryErrorKind(err), err)
	}

	out := filepath.Join(workDir, name+".tar")
	if err := crane.Save(img, ref, out); err != nil {
		return "", errors.NewItemError("save", name, util.RegistryErrorKind(err), err)
	}
	return out, nil
}
