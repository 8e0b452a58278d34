// Package config defines collector configuration and its loading layers.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/hookline/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr is the collector listen address, e.g. ":4319".
	Addr string `koanf:"addr"`

	// OTLPAddr is the OTLP/HTTP logs listen address, e.g. ":4318".
	OTLPAddr string `koanf:"otlp_addr"`

	// QueueSize bounds the dispatch queue between requests and the processor.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of processor workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds retained event ids; 0 keeps every id.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxBodyBytes caps a request body on both listeners.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// OTLPPrivacyTier is stamped on events normalized from OTLP exports.
	OTLPPrivacyTier int `koanf:"otlp_privacy_tier"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":4319",
		OTLPAddr:        ":4318",
		QueueSize:       10_000,
		WorkerCount:     runtime.NumCPU() * 2,
		DedupeSize:      0, // unbounded
		MaxBodyBytes:    4 << 20,
		OTLPPrivacyTier: int(model.PrivacyTierStandard),
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if strings.TrimSpace(c.OTLPAddr) == "" {
		problems = append(problems, "otlp_addr must not be empty")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.DedupeSize < 0 {
		problems = append(problems, "dedupe_size must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		problems = append(problems, "max_body_bytes must be positive")
	}
	if !model.PrivacyTier(c.OTLPPrivacyTier).Valid() {
		problems = append(problems, "otlp_privacy_tier must be 0, 1 or 2")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, "log_format must be text or json")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
