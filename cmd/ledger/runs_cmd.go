package ledger

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/module/mirror/ledger"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

func getRunsCmd(path func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ledger.ReadRecords(path())
			if err != nil {
				return err
			}
			ids := ledger.RunIDs(records)
			if len(ids) == 0 {
				pterm.Info.Println("The ledger is empty.")
				return nil
			}
			summaries := make([]types.RunSummary, 0, len(ids))
			for _, id := range ids {
				summaries = append(summaries, types.Summarize(id, records))
			}

			format, err := printer.ParseFormat(config.Global.Format)
			if err != nil {
				return err
			}
			return printer.Print(format, summaries, printer.TableOptions{
				ColumnMapping: printer.ColumnMapping{
					{"run_id", "Run"},
					{"admitted", "Admitted"},
					{"succeeded", "Succeeded"},
					{"abandoned", "Abandoned"},
					{"skipped", "Skipped"},
					{"attempts", "Attempts"},
				},
				ShowTotal: true,
			})
		},
	}
}

func getAbandonedCmd(path func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "abandoned",
		Short: "List images whose latest record is Abandoned",
		Long:  "List images whose latest record is Abandoned. The next run attempts them first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := ledger.LoadAbandoned(path())
			if err != nil {
				return err
			}
			format, err := printer.ParseFormat(config.Global.Format)
			if err != nil {
				return err
			}
			if format == printer.FormatJSON {
				if names == nil {
					names = []string{}
				}
				return printer.PrintJSON(names)
			}
			if len(names) == 0 {
				pterm.Success.Println("No abandoned images.")
				return nil
			}
			for _, name := range names {
				pterm.Println(name)
			}
			return nil
		},
	}
}
