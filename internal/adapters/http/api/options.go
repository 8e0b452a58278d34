package api

import (
	"time"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
)

type config struct {
	maxBodyBytes int64
	privacyTier  model.PrivacyTier
	clock        func() time.Time
	logger       logger.Logger
}

// Option configures a Server.
type Option func(*config)

// WithMaxBodyBytes caps request bodies on every route. Non-positive values
// keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithPrivacyTier sets the tier stamped on events normalized from OTLP
// exports.
func WithPrivacyTier(tier model.PrivacyTier) Option {
	return func(c *config) {
		if tier.Valid() {
			c.privacyTier = tier
		}
	}
}

// WithClock sets the ingestion clock for OTLP exports.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
