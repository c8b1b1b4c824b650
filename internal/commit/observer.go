package commit

import (
	"context"
	"time"

	"orderbridge/internal/journal"
	"orderbridge/internal/orders"
)

// Observer is notified of every processed order and of every ledger write
// that could not be applied.
type Observer interface {
	OrderProcessed(ctx context.Context, res Result, elapsed time.Duration)
	LedgerWriteFailed(op journal.Op, key orders.Key, err error)
}

// Observers fans notifications out in order.
type Observers []Observer

func (o Observers) OrderProcessed(ctx context.Context, res Result, elapsed time.Duration) {
	for _, obs := range o {
		obs.OrderProcessed(ctx, res, elapsed)
	}
}

func (o Observers) LedgerWriteFailed(op journal.Op, key orders.Key, err error) {
	for _, obs := range o {
		obs.LedgerWriteFailed(op, key, err)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Processed   func(ctx context.Context, res Result, elapsed time.Duration)
	WriteFailed func(op journal.Op, key orders.Key, err error)
}

func (f ObserverFuncs) OrderProcessed(ctx context.Context, res Result, elapsed time.Duration) {
	if f.Processed != nil {
		f.Processed(ctx, res, elapsed)
	}
}

func (f ObserverFuncs) LedgerWriteFailed(op journal.Op, key orders.Key, err error) {
	if f.WriteFailed != nil {
		f.WriteFailed(op, key, err)
	}
}
