package ledger

import (
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/internal/style"
	"github.com/galaxyproject/depotsync/module/mirror"
	"github.com/galaxyproject/depotsync/module/mirror/ledger"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

type recordRow struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Duration string `json:"duration"`
}

func getShowCmd(path func() string) *cobra.Command {
	var runID string

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the records of one run",
		Long: heredoc.Doc(`
			Print every record of a run with its totals. Without --run-id the most
			recent run in the ledger is shown.`),
		Example: heredoc.Doc(`
			depotsync ledger show
			depotsync ledger show --run-id 6f1c2a9e-3b4d-4e8f-9a0b-1c2d3e4f5a6b --format json`),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ledger.ReadRecords(path())
			if err != nil {
				return err
			}
			id, selected := ledger.ForRun(records, runID)
			if len(selected) == 0 {
				if runID != "" {
					return fmt.Errorf("run %s not found in %s", runID, path())
				}
				pterm.Info.Println("The ledger is empty.")
				return nil
			}
			summary := types.Summarize(id, selected)

			format, err := printer.ParseFormat(config.Global.Format)
			if err != nil {
				return err
			}
			if format == printer.FormatJSON {
				return printer.PrintJSON(struct {
					Summary types.RunSummary  `json:"summary"`
					Records []types.RunRecord `json:"records"`
				}{summary, selected})
			}

			rows := make([]recordRow, 0, len(selected))
			for _, rec := range selected {
				rows = append(rows, recordRow{
					Name:     rec.Name,
					Status:   style.Status(string(rec.Status)),
					Attempts: rec.Attempts,
					Kind:     rec.Kind,
					Error:    rec.Error,
					Duration: rec.Duration.Round(time.Second).String(),
				})
			}
			pterm.DefaultSection.Println("Run " + id)
			if err := printer.PrintTableWithOptions(rows, printer.TableOptions{
				ColumnMapping: printer.ColumnMapping{
					{"name", "Image"},
					{"status", "Status"},
					{"attempts", "Attempts"},
					{"kind", "Kind"},
					{"error", "Error"},
					{"duration", "Duration"},
				},
			}); err != nil {
				return err
			}
			pterm.Println(mirror.Describe(summary))
			return nil
		},
	}
	showCmd.Flags().StringVar(&runID, "run-id", "", "Run to show (default: most recent)")

	return showCmd
}
