package ledger

import (
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
)

var defaultLedgerPath = filepath.Join(".depotsync", "ledger.jsonl")

func GetRootCmd(f *cmdutils.Factory) *cobra.Command {
	var path string

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the run ledger",
		Long: heredoc.Doc(`
			Read the ledger written by "depotsync mirror run". Every line is one image
			that reached a final state in a run.

			The ledger path is taken from --ledger, then from the configuration file,
			then defaults to .depotsync/ledger.jsonl.`),
	}
	rootCmd.PersistentFlags().StringVar(&path, "ledger", "", "Path of the run ledger")

	resolve := func() string {
		return ledgerPath(f, path)
	}
	rootCmd.AddCommand(getShowCmd(resolve))
	rootCmd.AddCommand(getRunsCmd(resolve))
	rootCmd.AddCommand(getAbandonedCmd(resolve))

	return rootCmd
}

func ledgerPath(f *cmdutils.Factory, flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	cfg, err := f.Config()
	if err != nil {
		log.Debug().Err(err).Str("path", defaultLedgerPath).Msg("No usable config, using default ledger path")
		return defaultLedgerPath
	}
	return cfg.Ledger.Path
}
