// Package mirror wires listers, differ, engine, executor and ledger into one
// reconciliation pass.
package mirror

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/galaxyproject/depotsync/module/mirror/adapter"
	"github.com/galaxyproject/depotsync/module/mirror/converter"
	"github.com/galaxyproject/depotsync/module/mirror/differ"
	"github.com/galaxyproject/depotsync/module/mirror/engine"
	"github.com/galaxyproject/depotsync/module/mirror/executor"
	"github.com/galaxyproject/depotsync/module/mirror/ledger"
	"github.com/galaxyproject/depotsync/module/mirror/transfer"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/module/mirror/util"
	"github.com/galaxyproject/depotsync/util/common/errors"
	"github.com/galaxyproject/depotsync/util/common/fileutil"
	"github.com/galaxyproject/depotsync/util/common/progress"

	_ "github.com/galaxyproject/depotsync/module/mirror/adapter/depot"
	_ "github.com/galaxyproject/depotsync/module/mirror/adapter/dir"
	_ "github.com/galaxyproject/depotsync/module/mirror/adapter/oci"
	_ "github.com/galaxyproject/depotsync/module/mirror/adapter/quay"
)

// Exit codes of a run.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitAbandoned = 2
	ExitFatal     = 3
)

// Dump file names written to the dump directory.
const (
	SourceDump      = "source.log"
	DestinationDump = "destination.log"
	DiffDump        = "diff.log"
)

// Service performs reconciliation passes for one configuration.
type Service struct {
	config   types.Config
	source   adapter.Lister
	dest     adapter.Lister
	executor engine.Executor
	reporter progress.Reporter
	logger   zerolog.Logger
}

type Option func(*Service)

// WithListers replaces the listers the configuration selects.
func WithListers(source, destination adapter.Lister) Option {
	return func(s *Service) {
		s.source = source
		s.dest = destination
	}
}

// WithExecutor replaces the convert-and-send executor the configuration selects.
func WithExecutor(e engine.Executor) Option {
	return func(s *Service) { s.executor = e }
}

func WithReporter(r progress.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service working on a private copy of cfg. Failing to build a
// lister is fatal.
func New(ctx context.Context, cfg *types.Config, opts ...Option) (*Service, error) {
	s := &Service{
		config:   *cfg,
		reporter: progress.NewNopReporter(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.source == nil {
		s.source, err = adapter.GetLister(ctx, cfg.Source, adapter.Env{Side: types.SideSource, UserAgent: cfg.UserAgent})
		if err != nil {
			return nil, errors.Fatal("source lister", err)
		}
	}
	if s.dest == nil {
		s.dest, err = adapter.GetLister(ctx, cfg.Dest, adapter.Env{Side: types.SideDestination, UserAgent: cfg.UserAgent})
		if err != nil {
			return nil, errors.Fatal("destination lister", err)
		}
	}
	return s, nil
}

// Snapshots lists both sides concurrently.
func (s *Service) Snapshots(ctx context.Context) (source, destination *types.Snapshot, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		snap, err := s.source.ListArtifacts(gctx)
		if err != nil {
			return errors.Fatal("list source", err)
		}
		s.logger.Info().Int("artifacts", snap.Len()).Dur("duration", time.Since(start)).Msg("Listed source")
		source = snap
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		snap, err := s.dest.ListArtifacts(gctx)
		if err != nil {
			return errors.Fatal("list destination", err)
		}
		s.logger.Info().Int("artifacts", snap.Len()).Dur("duration", time.Since(start)).Msg("Listed destination")
		destination = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, destination, nil
}

// Plan lists both sides and computes the ordered work set. Names abandoned by
// earlier runs are placed first.
func (s *Service) Plan(ctx context.Context) (*differ.Plan, error) {
	denylist, err := s.denylist()
	if err != nil {
		return nil, errors.Fatal("denylist", err)
	}
	resume, err := ledger.LoadAbandoned(s.config.Ledger.Path)
	if err != nil {
		return nil, errors.Fatal("ledger", err)
	}

	source, destination, err := s.Snapshots(ctx)
	if err != nil {
		return nil, err
	}

	plan := differ.Compute(source, destination,
		differ.WithDenylist(denylist),
		differ.WithDeferPrefixes(s.config.Filters.DeferPrefixes...),
		differ.WithResume(resume...),
	)
	s.logger.Info().
		Int("missing", len(plan.Missing)).
		Int("denied", len(plan.Denied)).
		Int("resumed", plan.Resumed).
		Int("deferred", plan.Deferred).
		Int("work", len(plan.Work)).
		Msg("Computed work set")

	if s.config.DumpDir != "" {
		if err := dump(s.config.DumpDir, source, destination, plan); err != nil {
			s.logger.Warn().Err(err).Str("dir", s.config.DumpDir).Msg("Failed to write inventory dumps")
		}
	}
	return plan, nil
}

func (s *Service) denylist() (*util.Denylist, error) {
	if s.config.Filters.Denylist != "" {
		return util.LoadDenylist(s.config.Filters.Denylist, s.config.Filters.Deny...)
	}
	return util.NewDenylist(s.config.Filters.Deny...)
}

func dump(dir string, source, destination *types.Snapshot, plan *differ.Plan) error {
	if err := fileutil.WriteLines(filepath.Join(dir, SourceDump), source.Names()); err != nil {
		return err
	}
	if err := fileutil.WriteLines(filepath.Join(dir, DestinationDump), destination.Names()); err != nil {
		return err
	}
	return fileutil.WriteLines(filepath.Join(dir, DiffDump), plan.Missing)
}

// Run performs one reconciliation pass. Startup failures (listing, ledger,
// scratch dir) are fatal and happen before any item is processed.
func (s *Service) Run(ctx context.Context) (types.RunSummary, error) {
	plan, err := s.Plan(ctx)
	if err != nil {
		return types.RunSummary{}, err
	}

	exec, closer, err := s.buildExecutor()
	if err != nil {
		return types.RunSummary{}, errors.Fatal("executor", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	led, err := ledger.Open(s.config.Ledger.Path, ledger.WithLogger(s.logger))
	if err != nil {
		return types.RunSummary{}, errors.Fatal("ledger", err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close ledger")
		}
	}()

	run := s.config.Run
	opts := []engine.Option{
		engine.WithConcurrency(run.Concurrency),
		engine.WithMaxRetries(run.MaxRetries),
		engine.WithItemTimeout(run.ItemTimeout),
		engine.WithRunTimeout(run.RunTimeout),
		engine.WithRetryDelay(run.RetryDelay, 0),
		engine.WithPauseCeiling(s.config.Scratch.PauseCeiling),
		engine.WithRecorder(led),
		engine.WithLogger(s.logger),
		engine.WithReporter(s.reporter),
	}
	if budget := s.config.Scratch.BudgetBytes(); budget > 0 {
		scratch := s.config.Scratch.Dir
		opts = append(opts, engine.WithScratchGauge(func() (int64, error) {
			return fileutil.DirSize(scratch)
		}, budget, s.config.Scratch.PauseCeiling))
	}
	eng := engine.NewEngine(exec, opts...)

	logger := s.logger.With().Str("run_id", eng.RunID()).Logger()
	logger.Info().Int("items", len(plan.Work)).Msg("Starting run")

	summary, err := eng.Run(ctx, plan.Work)
	summary.Skipped += len(plan.Denied)
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("abandoned", summary.Abandoned).
		Int("skipped", summary.Skipped).
		Int("attempts", summary.Attempts).
		Dur("duration", summary.Duration).
		Msg("Run completed")
	return summary, err
}

// buildExecutor returns the configured executor and, for transfers holding a
// connection, what to close after the run.
func (s *Service) buildExecutor() (engine.Executor, io.Closer, error) {
	if err := fileutil.EnsureDir(s.config.Scratch.Dir); err != nil {
		return nil, nil, err
	}
	if s.executor != nil {
		return s.executor, nil, nil
	}
	conv, err := converter.New(s.config.Converter, s.config.Source, s.config.UserAgent)
	if err != nil {
		return nil, nil, err
	}
	tr, err := transfer.New(s.config.Transfer)
	if err != nil {
		return nil, nil, err
	}
	closer, _ := tr.(io.Closer)
	return executor.New(conv, tr, s.config.Scratch.Dir, executor.WithLogger(s.logger)), closer, nil
}

// ExitCode maps the result of Run to the process exit status.
func ExitCode(summary types.RunSummary, err error) int {
	switch {
	case err == nil && summary.HasAbandoned():
		return ExitAbandoned
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrFatal):
		return ExitFatal
	case summary.HasAbandoned():
		return ExitAbandoned
	default:
		return ExitError
	}
}

// Describe renders a summary on one line.
func Describe(summary types.RunSummary) string {
	return fmt.Sprintf("%d succeeded, %d abandoned, %d skipped, %d attempts",
		summary.Succeeded, summary.Abandoned, summary.Skipped, summary.Attempts)
}
