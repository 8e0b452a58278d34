package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/hookline/internal/domain/ingest"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
)

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDeduped
	outcomeRejected
	outcomeFailed
)

// client wraps http.Client with the collector base URL.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

func (c *client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ingest.PathHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

func (c *client) submit(ctx context.Context, ev model.EventEnvelope) outcome { //nolint:gocritic // hugeParam: envelopes travel by value
	body, err := json.Marshal(ev)
	if err != nil {
		return outcomeFailed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ingest.PathHooks, bytes.NewReader(body))
	if err != nil {
		return outcomeFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return outcomeFailed
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcomeFailed
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		var ack ingest.AckPayload
		if err := json.Unmarshal(data, &ack); err != nil {
			return outcomeFailed
		}
		if ack.Deduped {
			return outcomeDeduped
		}
		return outcomeAccepted
	case http.StatusBadRequest:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

// submitEvents posts events concurrently with a fixed worker pool.
func submitEvents(ctx context.Context, c *client, workers int, events []model.EventEnvelope, stats *Stats, log logger.Logger) {
	var submitted, accepted, deduped, rejected, failed atomic.Int64

	eventChan := make(chan model.EventEnvelope, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range eventChan {
				submitted.Add(1)
				switch c.submit(ctx, ev) {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDeduped:
					deduped.Add(1)
				case outcomeRejected:
					rejected.Add(1)
					log.Warn(ctx, "event rejected", logger.String("eventId", ev.EventID))
				case outcomeFailed:
					failed.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, ev := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- ev:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(accepted.Load())
	stats.Deduped = int(deduped.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())
}
