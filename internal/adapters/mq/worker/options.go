package worker

import (
	"github.com/okian/hookline/pkg/logger"
)

// Option configures a worker or a pool.
type Option func(*config)

type config struct {
	name      string
	base      logger.Logger
	logger    logger.Logger
	onFailure FailureReporter
}

func newConfig(name string, opts []Option) config {
	cfg := config{name: name, base: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.base.Named(cfg.name)
	return cfg
}

// WithName sets the name used for identification and logging.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.base = l
		}
	}
}

// WithFailureReporter registers a callback for processor failures.
func WithFailureReporter(fn FailureReporter) Option {
	return func(c *config) {
		c.onFailure = fn
	}
}
