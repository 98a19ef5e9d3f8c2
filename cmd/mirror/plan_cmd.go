package mirror

import (
	"context"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/module/mirror"
	"github.com/galaxyproject/depotsync/module/mirror/differ"
	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

type planRow struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Locator string `json:"locator"`
}

func getPlanCmd(f *cmdutils.Factory) *cobra.Command {
	var (
		buildScript   string
		imageTemplate string
	)

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ordered work set without building anything",
		Long: heredoc.Doc(`
			List both sides and print the images a run would build, in the order it
			would build them.

			With --build-script the work set is written as a shell script instead,
			one line per image rendered from --image-template. The template may use
			${img}, ${locator}, ${idx}, ${total} and ${target}. $$ is a literal $ and
			any other variable is written as ${VAR} for the shell to expand. Lines are
			appended, so a preamble already in the script is kept.`),
		Example: heredoc.Doc(`
			depotsync mirror plan -c depotsync.yaml
			depotsync mirror plan -c depotsync.yaml --build-script build.sh --image-template image_template.sh`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			svc, err := f.Service(ctx, cfg)
			if err != nil {
				return err
			}
			plan, err := svc.Plan(ctx)
			if err != nil {
				return err
			}

			if buildScript == "" {
				return printPlan(plan, printFormat())
			}
			if len(plan.Work) == 0 {
				pterm.Warning.Println("No new images found.")
				return nil
			}
			tmpl := ""
			if imageTemplate != "" {
				data, err := os.ReadFile(imageTemplate)
				if err != nil {
					return errors.NewFileError(imageTemplate, "read", err)
				}
				tmpl = string(data)
			}
			if err := mirror.WriteBuildScriptFile(buildScript, plan.Work, tmpl, mirror.ScriptVars{Target: cfg.Transfer.Target}); err != nil {
				return err
			}
			pterm.Success.Printfln("%d new images found, build script written to %s", len(plan.Work), buildScript)
			return nil
		},
	}
	addOverrideFlags(planCmd)
	planCmd.Flags().StringVar(&buildScript, "build-script", "", "Write a shell build script to this path")
	planCmd.Flags().StringVar(&imageTemplate, "image-template", "", "Template for one image in the build script")

	return planCmd
}

func printPlan(plan *differ.Plan, format printer.Format) error {
	rows := make([]planRow, 0, len(plan.Work))
	for i, item := range plan.Work {
		rows = append(rows, planRow{Index: i + 1, Name: item.Name(), Locator: item.Ref.SourceLocator()})
	}
	if format == printer.FormatJSON {
		return printer.PrintJSON(struct {
			Work    []planRow `json:"work"`
			Missing int       `json:"missing"`
			Denied  []string  `json:"denied"`
		}{rows, len(plan.Missing), plan.Denied})
	}
	if len(plan.Denied) > 0 {
		util.GetSkipPrinter().Printfln("%d images on the denylist", len(plan.Denied))
	}
	if len(rows) == 0 {
		pterm.Info.Println("Nothing to do, the destination is up to date.")
		return nil
	}
	return printer.PrintTableWithOptions(rows, printer.TableOptions{
		ColumnMapping: printer.ColumnMapping{
			{"index", "#"},
			{"name", "Image"},
			{"locator", "Locator"},
		},
		ShowTotal: true,
	})
}
