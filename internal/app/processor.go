package service

import (
	"context"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
)

// LoggingProcessor is the standalone default: it logs each accepted event.
type LoggingProcessor struct {
	logger logger.Logger
}

// NewLoggingProcessor creates a LoggingProcessor.
func NewLoggingProcessor(l logger.Logger) *LoggingProcessor {
	if l == nil {
		l = logger.Nop()
	}
	return &LoggingProcessor{logger: l.Named("processor")}
}

// ProcessAcceptedEvent logs ev at debug level.
func (p *LoggingProcessor) ProcessAcceptedEvent(ctx context.Context, ev model.EventEnvelope) error { //nolint:gocritic // hugeParam: envelopes travel by value
	p.logger.Debug(ctx, "accepted event",
		logger.String("eventId", ev.EventID),
		logger.String("sessionId", ev.SessionID),
		logger.String("eventType", ev.EventType),
		logger.String("source", string(ev.Source)),
		logger.Int("privacyTier", int(ev.PrivacyTier)),
	)
	return nil
}
