package mirror

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/util/common/fileutil"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

func getPruneCmd(f *cmdutils.Factory) *cobra.Command {
	var output string

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "List images superseded by a newer build of the same version",
		Long: heredoc.Doc(`
			List the destination and report every image with a newer build of the same
			package version. For "mehr-licht:1.2--r341_0" and "mehr-licht:1.2--r351_1"
			the first one is reported.

			The highest build number wins; for equal numbers the build string decides.
			Nothing is deleted.`),
		Example: heredoc.Doc(`
			depotsync mirror prune -c depotsync.yaml
			depotsync mirror prune -c depotsync.yaml --output old-builds.txt`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			svc, err := f.Service(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			old, err := svc.OldBuilds(cmd.Context())
			if err != nil {
				return err
			}

			if output != "" {
				names := make([]string, 0, len(old))
				for _, b := range old {
					names = append(names, b.Name)
				}
				if err := fileutil.WriteLines(output, names); err != nil {
					return err
				}
				pterm.Success.Printfln("%d old builds written to %s", len(old), output)
				return nil
			}
			if len(old) == 0 && printFormat() != printer.FormatJSON {
				pterm.Info.Println("No old builds found.")
				return nil
			}
			return printer.Print(printFormat(), old, printer.TableOptions{
				ColumnMapping: printer.ColumnMapping{
					{"name", "Image"},
					{"package", "Package"},
					{"build_string", "Build"},
					{"build_number", "Number"},
				},
				ShowTotal: true,
			})
		},
	}
	addOverrideFlags(pruneCmd)
	pruneCmd.Flags().StringVarP(&output, "output", "o", "", "Write the names to this file, one per line")

	return pruneCmd
}
