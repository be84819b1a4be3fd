package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/bridge"
	"github.com/Iron-Ham/duo/internal/config"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/event"
	"github.com/Iron-Ham/duo/internal/logging"
	"github.com/Iron-Ham/duo/internal/metrics"
	"github.com/Iron-Ham/duo/internal/store"
	"github.com/Iron-Ham/duo/internal/tracing"
)

// shutdownTimeout bounds how long exporters may flush on exit.
const shutdownTimeout = 5 * time.Second

// app holds the services one command invocation works with.
type app struct {
	cfg     *config.Config
	store   store.Store
	bridge  *bridge.Bridge
	bus     *event.Bus
	metrics *metrics.Metrics
	logger  *logging.Logger

	shutdownTracing tracing.ShutdownFunc
}

// newApp loads configuration and opens the store. Callers must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(cfg.Store.LogFile(), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open debug log")
		}
	}
	logger = logger.With("command", cmd.CommandPath(), "pid", os.Getpid())

	shutdown, err := tracing.Setup(cmd.Context(), cfg.Tracing, "duo")
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	st, err := store.Open(cfg.Store, store.WithLogger(logger))
	if err != nil {
		_ = shutdown(context.Background())
		_ = logger.Close()
		return nil, err
	}

	m := metrics.New()
	bus := event.NewBus(logger)
	b := bridge.New(st,
		bridge.WithPollInterval(cfg.Coordination.PollInterval),
		bridge.WithMaxConflictRetries(cfg.Coordination.MaxConflictRetries),
		bridge.WithDefaultTimeout(cfg.Coordination.DefaultTimeout),
		bridge.WithWatch(cfg.Coordination.WatchFilesystem),
		bridge.WithLogger(logger),
		bridge.WithEventBus(bus),
		bridge.WithMetrics(m),
	)

	logger.Debug("command started", "backend", cfg.Store.Backend, "store_dir", cfg.Store.ResolveDir())
	return &app{
		cfg:             cfg,
		store:           st,
		bridge:          b,
		bus:             bus,
		metrics:         m,
		logger:          logger,
		shutdownTracing: shutdown,
	}, nil
}

// Close flushes metrics and traces and releases the store.
func (a *app) Close() error {
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("trace shutdown failed", "error", err)
	}

	a.bus.Clear()
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withApp runs fn with an open app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}
