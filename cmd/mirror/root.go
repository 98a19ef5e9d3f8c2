package mirror

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
)

func GetRootCmd(f *cmdutils.Factory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Reconcile a container image depot with its source registry",
		Long: heredoc.Doc(`
			Commands that compare the source registry with the destination depot and
			build what is missing.

			The source and destination, the converter and the transfer are set in the
			configuration file passed with --config.`),
	}

	rootCmd.AddCommand(getRunCmd(f))
	rootCmd.AddCommand(getPlanCmd(f))
	rootCmd.AddCommand(getPruneCmd(f))

	return rootCmd
}
