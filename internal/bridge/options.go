package bridge

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/duo/internal/event"
	"github.com/Iron-Ham/duo/internal/logging"
	"github.com/Iron-Ham/duo/internal/metrics"
	"github.com/Iron-Ham/duo/internal/tracing"
)

const (
	// defaultPollInterval is how often waits reload the session.
	defaultPollInterval = 500 * time.Millisecond

	// defaultMaxConflictRetries bounds reloads after a lost compare-and-save.
	defaultMaxConflictRetries = 5

	// defaultTimeout applies to waits called with a non-positive timeout.
	defaultTimeout = 10 * time.Minute
)

// Option configures a Bridge.
type Option func(*settings)

type settings struct {
	pollInterval   time.Duration
	maxRetries     int
	defaultTimeout time.Duration
	watch          bool
	logger         *logging.Logger
	bus            *event.Bus
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	now            func() time.Time
}

func defaultSettings() settings {
	return settings{
		pollInterval:   defaultPollInterval,
		maxRetries:     defaultMaxConflictRetries,
		defaultTimeout: defaultTimeout,
		watch:          true,
		logger:         logging.NopLogger(),
		tracer:         tracing.Tracer(),
		now:            time.Now,
	}
}

// WithPollInterval sets how often waits reload the session.
// A zero or negative value is replaced with the default (500ms).
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxConflictRetries sets how many times a mutation reloads after
// losing a compare-and-save. Zero means a single attempt.
func WithMaxConflictRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithDefaultTimeout sets the timeout used by waits called without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithWatch enables or disables early wake-ups from stores that implement
// store.Notifier. Polling continues either way.
func WithWatch(enabled bool) Option {
	return func(s *settings) {
		s.watch = enabled
	}
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes session lifecycle events to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(s *settings) {
		s.bus = bus
	}
}

// WithMetrics records engine metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source for exchange timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
