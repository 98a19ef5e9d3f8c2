package cmdutils

import (
	"context"
	"sync"

	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/module/mirror"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
	"github.com/galaxyproject/depotsync/util/common/progress"
)

// Factory builds what commands need on first use, so help and completion work
// without a config file.
type Factory struct {
	Config   func() (*types.Config, error)
	Service  func(ctx context.Context, cfg *types.Config) (*mirror.Service, error)
	Reporter func() progress.Reporter
}

func NewFactory() *Factory {
	var (
		once   sync.Once
		cfg    *types.Config
		cfgErr error
	)
	f := &Factory{
		Reporter: func() progress.Reporter { return progress.NewNopReporter() },
	}
	f.Config = func() (*types.Config, error) {
		once.Do(func() {
			cfg, cfgErr = types.LoadConfig(config.Global.ConfigPath)
			if cfgErr != nil {
				cfgErr = errors.Fatal("config", cfgErr)
			}
		})
		return cfg, cfgErr
	}
	f.Service = func(ctx context.Context, cfg *types.Config) (*mirror.Service, error) {
		return mirror.New(ctx, cfg, mirror.WithReporter(f.Reporter()))
	}
	return f
}
