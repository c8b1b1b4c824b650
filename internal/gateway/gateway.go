// Package gateway is the boundary to the downstream ERP. The core hands it a
// resolved orders.Draft and receives the ERP document identifiers or a
// classified *Error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderbridge/internal/orders"
	"orderbridge/internal/reliability"
)

// DocRef identifies the document created downstream.
type DocRef struct {
	ID     string
	Number string
}

// Committer creates orders downstream.
type Committer interface {
	CreateOrder(ctx context.Context, draft orders.Draft) (DocRef, error)
}

// Session is one downstream connection. A session serves a single call and
// is not safe for concurrent use.
type Session interface {
	CreateOrder(ctx context.Context, draft orders.Draft) (DocRef, error)
	Close() error
}

// SessionFactory opens downstream sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Config tunes the gateway. Breaker and Limiter are optional.
type Config struct {
	CallTimeout time.Duration
	Breaker     *reliability.CircuitBreaker
	Limiter     *reliability.RateLimiter
	Logger      *slog.Logger
}

// Gateway opens a fresh session per call and releases it on every path.
// It does not retry.
type Gateway struct {
	factory SessionFactory
	timeout time.Duration
	breaker *reliability.CircuitBreaker
	limiter *reliability.RateLimiter
	logger  *slog.Logger
}

// New constructs a Gateway.
func New(factory SessionFactory, cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		factory: factory,
		timeout: cfg.CallTimeout,
		breaker: cfg.Breaker,
		limiter: cfg.Limiter,
		logger:  logger,
	}
}

// CreateOrder commits a draft downstream.
func (g *Gateway) CreateOrder(ctx context.Context, draft orders.Draft) (DocRef, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return DocRef{}, NewError(Unavailable, fmt.Errorf("rate limit: %w", err))
	}

	var ref DocRef
	err := g.breaker.Execute(func() error {
		var callErr error
		ref, callErr = g.call(ctx, draft)
		return callErr
	})
	if errors.Is(err, reliability.ErrCircuitOpen) {
		return DocRef{}, NewError(Unavailable, err)
	}
	if err != nil {
		return DocRef{}, err
	}
	return ref, nil
}

func (g *Gateway) call(ctx context.Context, draft orders.Draft) (ref DocRef, err error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	session, err := g.factory.Open(ctx)
	if err != nil {
		return DocRef{}, classify(err, Unavailable)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			g.logger.Warn("close downstream session", "order", draft.Key.String(), "err", closeErr)
		}
	}()

	ref, err = session.CreateOrder(ctx, draft)
	if err != nil {
		return DocRef{}, classify(err, UnknownOutcome)
	}
	if ref.ID == "" || ref.Number == "" {
		return DocRef{}, NewError(UnknownOutcome, errors.New("downstream returned empty document identifiers"))
	}
	return ref, nil
}

// classify keeps an adapter's classification and otherwise applies fallback.
func classify(err error, fallback Kind) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	return NewError(fallback, err)
}
