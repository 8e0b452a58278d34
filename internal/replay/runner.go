package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/hookline/pkg/logger"
)

// Submit checks the collector is healthy and posts every event in batch to
// it. A dry run only counts the batch.
func Submit(ctx context.Context, cfg Config, batch Batch) (Stats, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger.Named("replay")

	stats := Stats{Parsed: len(batch.Events), Skipped: batch.Skipped}
	for _, e := range batch.Errors {
		log.Debug(ctx, "recording issue", logger.String("error", e))
	}
	if cfg.DryRun || len(batch.Events) == 0 {
		return stats, nil
	}

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.health(ctx); err != nil {
		return stats, err
	}

	start := time.Now()
	log.Info(ctx, "submitting events",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", len(batch.Events)),
		logger.Int("workers", cfg.Workers),
	)
	submitEvents(ctx, c, cfg.Workers, batch.Events, &stats, log)
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("deduped", stats.Deduped),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.String("duration", time.Since(start).String()),
	)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("replay interrupted: %w", err)
	}
	return stats, nil
}
