package mirror

import (
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// addOverrideFlags binds the flags that override run settings of the config file.
func addOverrideFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&config.Global.Mirror.Concurrency, "concurrency", 1, "Number of images built at once (overrides config)")
	flags.IntVar(&config.Global.Mirror.MaxRetries, "max-retries", 1, "Retries per image after a transient failure (overrides config)")
	flags.StringVar(&config.Global.Mirror.DumpDir, "dump-dir", "", "Write source.log, destination.log and diff.log to this directory")
	flags.StringVar(&config.Global.Mirror.LedgerPath, "ledger", "", "Path of the run ledger (overrides config)")
	flags.StringVar(&config.Global.Mirror.ScratchDir, "scratch-dir", "", "Directory for conversion scratch space (overrides config)")
}

// loadConfig reads the config file and applies the flags set on the command line.
func loadConfig(cmd *cobra.Command, f *cmdutils.Factory) (*types.Config, error) {
	loaded, err := f.Config()
	if err != nil {
		return nil, err
	}
	cfg := *loaded

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Run.Concurrency = config.Global.Mirror.Concurrency
	}
	if flags.Changed("max-retries") {
		cfg.Run.MaxRetries = config.Global.Mirror.MaxRetries
	}
	if flags.Changed("dump-dir") {
		cfg.DumpDir = config.Global.Mirror.DumpDir
	}
	if flags.Changed("ledger") {
		cfg.Ledger.Path = config.Global.Mirror.LedgerPath
	}
	if flags.Changed("scratch-dir") {
		cfg.Scratch.Dir = config.Global.Mirror.ScratchDir
	}
	if flags.Lookup("dry-run") != nil && flags.Changed("dry-run") {
		cfg.Run.DryRun = config.Global.Mirror.DryRun
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Fatal("config", err)
	}
	return &cfg, nil
}
