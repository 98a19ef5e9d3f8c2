// Package adapter lists the artifacts present on either side of the mirror.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/galaxyproject/depotsync/module/mirror/types"
)

// Lister takes a snapshot of one side. A failure means the side could not be
// observed at all; partial listings are never returned.
type Lister interface {
	ListArtifacts(ctx context.Context) (*types.Snapshot, error)
}

// Env carries the run-wide settings a factory may need.
type Env struct {
	Side      types.Side
	UserAgent string
}

var registry = map[types.ListerType]Factory{}

type Factory interface {
	Create(ctx context.Context, config types.ListerConfig, env Env) (Lister, error)
}

// RegisterFactory registers one lister factory to the registry.
func RegisterFactory(t types.ListerType, factory Factory) error {
	if len(t) == 0 {
		return errors.New("invalid type")
	}
	if factory == nil {
		return errors.New("empty lister factory")
	}

	if _, exist := registry[t]; exist {
		return fmt.Errorf("lister factory for %s already exists", t)
	}
	registry[t] = factory
	return nil
}

// GetFactory gets the lister factory by the specified type.
func GetFactory(t types.ListerType) (Factory, error) {
	factory, exist := registry[t]
	if !exist {
		return nil, fmt.Errorf("lister factory for %s not found", t)
	}
	return factory, nil
}

func GetLister(ctx context.Context, cfg types.ListerConfig, env Env) (Lister, error) {
	factory, err := GetFactory(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get lister factory: %w", err)
	}
	lister, err := factory.Create(ctx, cfg, env)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s lister: %w", env.Side, err)
	}
	return lister, nil
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) (*types.Snapshot, error)

func (f ListerFunc) ListArtifacts(ctx context.Context) (*types.Snapshot, error) {
	return f(ctx)
}

// NewHTTPClient returns the retrying client shared by the HTTP listers. 429s,
// 5xx responses and connection errors are retried with exponential backoff.
func NewHTTPClient(retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 30 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = leveledLogger{}
	return c
}

// leveledLogger routes retryablehttp messages to zerolog at debug level.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) { log.Debug().Fields(kv).Msg(msg) }
func (leveledLogger) Warn(msg string, kv ...interface{})  { log.Debug().Fields(kv).Msg(msg) }
func (leveledLogger) Info(msg string, kv ...interface{})  { log.Debug().Fields(kv).Msg(msg) }
func (leveledLogger) Debug(msg string, kv ...interface{}) { log.Debug().Fields(kv).Msg(msg) }

// StatusError is returned for a final non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
