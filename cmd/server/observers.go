package main

import (
	"context"
	"time"

	"orderbridge/internal/commit"
	"orderbridge/internal/journal"
	"orderbridge/internal/observability"
	"orderbridge/internal/orders"
)

// outcomeFeed is the message pushed to operator consoles for each order.
type outcomeFeed struct {
	commit.Result
	ElapsedMs int64 `json:"elapsedMs"`
}

type publisher interface {
	PublishJSON(v any)
}

// metricsObserver records outcomes in Stats and Prometheus and forwards
// them to the live feed.
type metricsObserver struct {
	stats *observability.Stats
	prom  *observability.Prometheus
	feed  publisher
}

func (m metricsObserver) OrderProcessed(_ context.Context, res commit.Result, elapsed time.Duration) {
	m.stats.AddOutcome(string(res.Outcome))
	m.prom.ObserveOutcome(string(res.Outcome), elapsed)
	if m.feed != nil {
		m.feed.PublishJSON(outcomeFeed{Result: res, ElapsedMs: elapsed.Milliseconds()})
	}
}

func (m metricsObserver) LedgerWriteFailed(op journal.Op, _ orders.Key, _ error) {
	m.stats.AddLedgerWriteError()
	m.prom.LedgerWriteError(string(op))
}
