// Package executor runs the convert, send and clean steps for one work item.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/galaxyproject/depotsync/module/mirror/converter"
	"github.com/galaxyproject/depotsync/module/mirror/transfer"
	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// Builder converts an image and sends the result to the destination. It keeps
// no state between calls and can serve any number of workers.
type Builder struct {
	converter  converter.Converter
	transferer transfer.Transferer
	scratchDir string
	logger     zerolog.Logger
}

type Option func(*Builder)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func New(c converter.Converter, t transfer.Transferer, scratchDir string, opts ...Option) *Builder {
	b := &Builder{
		converter:  c,
		transferer: t,
		scratchDir: scratchDir,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Process runs one attempt. Every file it creates lives below a fresh
// directory in the scratch dir and is removed before it returns, whatever the
// outcome.
func (b *Builder) Process(ctx context.Context, item types.WorkItem) types.Outcome {
	start := time.Now()
	logger := b.logger.With().
		Str("artifact", item.Name()).
		Int("attempt", item.Attempt).
		Logger()

	if err := os.MkdirAll(b.scratchDir, 0o755); err != nil {
		return types.Failed(errors.Classified("prepare", item.Name(), err), time.Since(start))
	}
	workDir, err := os.MkdirTemp(b.scratchDir, "item-*")
	if err != nil {
		return types.Failed(errors.Classified("prepare", item.Name(), err), time.Since(start))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Str("dir", workDir).Msg("Failed to clean scratch directory")
		}
	}()

	local, err := b.convert(ctx, logger, item, workDir)
	if err != nil {
		return types.Failed(err, time.Since(start))
	}
	if !within(workDir, local) {
		defer os.Remove(local)
	}

	if err := b.send(ctx, logger, item, local); err != nil {
		return types.Failed(err, time.Since(start))
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("Artifact mirrored")
	return types.Succeeded(time.Since(start))
}

func (b *Builder) convert(ctx context.Context, logger zerolog.Logger, item types.WorkItem, workDir string) (string, error) {
	logger = logger.With().Str("step", "convert").Logger()
	logger.Info().Msg("Starting convert step")
	startTime := time.Now()

	locator := item.Ref.SourceLocator()
	if locator == "" {
		locator = item.Name()
	}
	local, err := b.converter.Convert(ctx, locator, workDir)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to convert artifact")
		return "", itemError("convert", item.Name(), err)
	}
	size := int64(0)
	if info, err := os.Stat(local); err == nil {
		size = info.Size()
	} else {
		logger.Error().Err(err).Str("path", local).Msg("Converted artifact is missing")
		return "", errors.Transient("convert", item.Name(), fmt.Errorf("converter output %s: %w", local, err))
	}

	logger.Info().
		Str("size", common.GetSize(size)).
		Dur("duration", time.Since(startTime)).
		Msg("Completed convert step")
	return local, nil
}

func (b *Builder) send(ctx context.Context, logger zerolog.Logger, item types.WorkItem, local string) error {
	destination := filepath.Base(local)
	logger = logger.With().Str("step", "send").Str("destination", destination).Logger()
	logger.Info().Msg("Starting send step")
	startTime := time.Now()

	if err := b.transferer.Send(ctx, local, destination); err != nil {
		logger.Error().Err(err).Msg("Failed to send artifact")
		return itemError("send", item.Name(), err)
	}
	logger.Info().Dur("duration", time.Since(startTime)).Msg("Completed send step")
	return nil
}

// itemError keeps a kind set by the step and classifies everything else. An
// expired attempt context is always transient.
func itemError(op, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Transient(op, name, err)
	}
	var ie *errors.ItemError
	if errors.As(err, &ie) {
		return err
	}
	return errors.Classified(op, name, err)
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
