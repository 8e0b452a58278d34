// Package replay loads recorded sessions and submits them to a running
// collector.
package replay

import (
	"runtime"
	"time"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
)

// Defaults used when a Config field is left zero.
const (
	DefaultBaseURL = "http://localhost:4319"
	DefaultTimeout = 10 * time.Second
)

// Config holds configuration for one replay.
type Config struct {
	BaseURL     string            // Base URL of the collector
	SessionID   string            // Session id for transcript lines that carry none
	PrivacyTier model.PrivacyTier // Tier stamped on normalized events
	Workers     int               // Number of concurrent submitters
	Timeout     time.Duration     // HTTP request timeout
	DryRun      bool              // Parse and normalize only
	Logger      logger.Logger     // Progress logger; nil discards
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() * 2
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}

// Batch is a normalized recording ready to submit.
type Batch struct {
	Events  []model.EventEnvelope
	Skipped int
	Errors  []string
}

// Stats holds replay counters.
type Stats struct {
	Parsed    int
	Skipped   int
	Submitted int
	Accepted  int
	Deduped   int
	Rejected  int
	Failed    int
}
