package mirror

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/galaxyproject/depotsync/cmd/cmdutils"
	"github.com/galaxyproject/depotsync/config"
	"github.com/galaxyproject/depotsync/module/mirror"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/printer"
)

func getRunCmd(f *cmdutils.Factory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Build and publish every image missing from the depot",
		Long: heredoc.Doc(`
			Perform one reconciliation pass: list the source registry and the
			destination depot, convert every image present at the source and absent
			at the destination, push the result and record the outcome in the ledger.

			Images abandoned by an earlier run are attempted first.

			Example configuration file (depotsync.yaml):

			  run:
			    concurrency: 4
			    maxRetries: 1
			    itemTimeout: 2h
			  source:
			    type: QUAY
			    namespace: biocontainers
			  destination:
			    type: DEPOT
			    urls:
			      - https://depot.galaxyproject.org/singularity/new/
			      - https://depot.galaxyproject.org/singularity/
			  converter:
			    type: SINGULARITY
			  transfer:
			    type: RSYNC
			    target: singularity@depot.galaxyproject.org:/srv/nginx/depot.galaxyproject.org/root/singularity/
			    identityFile: ${SSH_KEY}
			  scratch:
			    dir: /tmp/depotsync
			    budget: 50GB
			  filters:
			    denylist: skip.list

			Environment variables can be used in the config file using ${VAR_NAME} syntax.

			Exit status is 0 when everything succeeded, 2 when an image was abandoned,
			3 when the run could not start and 1 for any other error.`),
		Example: heredoc.Doc(`
			depotsync mirror run -c depotsync.yaml
			depotsync mirror run -c depotsync.yaml --concurrency 8 --dump-dir logs/`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, f)
		},
	}
	addOverrideFlags(runCmd)
	runCmd.Flags().BoolVar(&config.Global.Mirror.DryRun, "dry-run", false, "Only print the work set")

	return runCmd
}

func runMirror(cmd *cobra.Command, f *cmdutils.Factory) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)
	go func() {
		select {
		case <-signalChan:
			pterm.Warning.Println("Received interrupt signal, abandoning outstanding images...")
			cancel()
		case <-ctx.Done():
		}
	}()

	svc, err := f.Service(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Run.DryRun {
		plan, err := svc.Plan(ctx)
		if err != nil {
			return err
		}
		return printPlan(plan, printFormat())
	}

	summary, err := svc.Run(ctx)
	code := mirror.ExitCode(summary, err)
	if err != nil && code == mirror.ExitFatal {
		return err
	}

	if perr := printer.Print(printFormat(), []types.RunSummary{summary}, printer.TableOptions{
		ColumnMapping: printer.ColumnMapping{
			{"run_id", "Run"},
			{"admitted", "Admitted"},
			{"succeeded", "Succeeded"},
			{"abandoned", "Abandoned"},
			{"skipped", "Skipped"},
			{"attempts", "Attempts"},
		},
	}); perr != nil {
		log.Error().Err(perr).Msg("Failed to print summary")
	}

	switch code {
	case mirror.ExitOK:
		pterm.Success.Println(mirror.Describe(summary))
		return nil
	case mirror.ExitAbandoned:
		for _, name := range summary.AbandonedNames {
			pterm.Error.Println("Abandoned " + name)
		}
		reason := fmt.Errorf("%d image(s) abandoned", summary.Abandoned)
		if err != nil {
			reason = fmt.Errorf("%w: %w", reason, err)
		}
		return &cmdutils.ExitError{Code: code, Err: reason}
	default:
		return &cmdutils.ExitError{Code: code, Err: err}
	}
}

func printFormat() printer.Format {
	format, err := printer.ParseFormat(config.Global.Format)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to table output")
		return printer.FormatTable
	}
	return format
}
