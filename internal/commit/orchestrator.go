// Package commit drives each submitted order through fingerprinting, the
// idempotency ledger, master-data pre-validation and the downstream commit,
// and records the terminal state.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderbridge/internal/gateway"
	"orderbridge/internal/journal"
	"orderbridge/internal/ledger"
	"orderbridge/internal/masterdata"
	"orderbridge/internal/orders"
)

// PreValidator checks an order's master-data references.
type PreValidator interface {
	Validate(ctx context.Context, req orders.OrderRequest, defaults orders.Defaults) (masterdata.Result, error)
}

// Config wires the orchestrator's collaborators. Journal, Observer and
// Logger are optional.
type Config struct {
	Ledger    ledger.Store
	Validator PreValidator
	Committer gateway.Committer
	Defaults  orders.Defaults
	Journal   journal.Writer
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator commits orders exactly once per key.
type Orchestrator struct {
	ledger    ledger.Store
	validator PreValidator
	committer gateway.Committer
	defaults  orders.Defaults
	journal   journal.Writer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		ledger:    cfg.Ledger,
		validator: cfg.Validator,
		committer: cfg.Committer,
		defaults:  cfg.Defaults,
		journal:   cfg.Journal,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if o.observer == nil {
		o.observer = Observers(nil)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// ProcessBatch processes envelopes one at a time and returns one result per
// envelope, in order. Once ctx is done, orders not yet started are reported
// as CANCELED; an order already started still reaches a terminal state.
func (o *Orchestrator) ProcessBatch(ctx context.Context, envs []orders.Envelope) []Result {
	results := make([]Result, 0, len(envs))
	for _, env := range envs {
		if ctx.Err() != nil {
			res := newResult(env.Key(), OutcomeCanceled, "request canceled before the order was processed; resubmit")
			o.observer.OrderProcessed(ctx, res, 0)
			results = append(results, res)
			continue
		}
		results = append(results, o.Process(ctx, env))
	}
	return results
}

// Process drives one order to its outcome.
func (o *Orchestrator) Process(ctx context.Context, env orders.Envelope) Result {
	start := o.now()
	res := o.process(ctx, env)
	o.observer.OrderProcessed(ctx, res, o.now().Sub(start))
	return res
}

// Status returns the ledger entry of a key.
func (o *Orchestrator) Status(ctx context.Context, key orders.Key) (ledger.Entry, error) {
	return o.ledger.Get(ctx, key)
}

func (o *Orchestrator) process(ctx context.Context, env orders.Envelope) Result {
	key := env.Key()
	log := o.logger.With("external_order_id", key.ExternalOrderID, "instance_id", key.InstanceID)

	if err := env.Validate(); err != nil {
		return newResult(key, OutcomeValidation, err.Error())
	}
	hash, err := orders.Fingerprint(env.BusinessObject)
	if err != nil {
		log.Error("fingerprint order", "err", err)
		return newResult(key, OutcomeValidation, "order content could not be normalized")
	}

	begin, err := o.ledger.Begin(ctx, key, hash)
	if err != nil {
		log.Error("ledger begin", "err", err)
		return newResult(key, OutcomeLedgerError, "order ledger unavailable; resubmit later")
	}

	switch begin.Outcome {
	case ledger.Started:
	case ledger.DuplicateCreated:
		res := newResult(key, OutcomeDuplicate, "order already created")
		res.ExternalDocID = begin.Entry.ExternalDocID
		res.ExternalDocNumber = begin.Entry.ExternalDocNumber
		return res
	case ledger.InProgress:
		return newResult(key, OutcomeInProgress, "order is being processed; retry later")
	case ledger.ConflictHash:
		return newResult(key, OutcomeConflictHash, "order key was already submitted with different content")
	default:
		log.Error("unexpected ledger outcome", "outcome", begin.Outcome.String())
		return newResult(key, OutcomeLedgerError, "order ledger unavailable; resubmit later")
	}

	// The key is now owned by this call. Everything below runs to a
	// terminal ledger state even if the caller goes away.
	return o.commitStarted(context.WithoutCancel(ctx), key, env.BusinessObject, log)
}

func (o *Orchestrator) commitStarted(ctx context.Context, key orders.Key, req orders.OrderRequest, log *slog.Logger) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while committing order", "panic", fmt.Sprint(r))
			o.finalizeFailed(ctx, key, "internal error", log)
			res = newResult(key, OutcomeCommitError, "internal error; resubmit to retry")
		}
	}()

	check, err := o.validator.Validate(ctx, req, o.defaults)
	if err != nil {
		log.Error("pre-validation unavailable", "err", err)
		o.finalizeFailed(ctx, key, "master data unavailable", log)
		return newResult(key, OutcomeCommitError, "master data unavailable; resubmit later")
	}
	if !check.OK {
		log.Info("pre-validation failed", "reason", check.Message)
		o.finalizeFailed(ctx, key, check.Message, log)
		return newResult(key, OutcomePrevalidationFailed, check.Message)
	}

	draft := orders.Resolve(key, req, o.defaults)
	ref, err := o.committer.CreateOrder(ctx, draft)
	if err != nil {
		summary := gateway.Summary(err)
		log.Error("downstream commit failed", "kind", gateway.KindOf(err).String(), "err", err)
		o.finalizeFailed(ctx, key, summary, log)
		return newResult(key, OutcomeCommitError, summary)
	}

	if err := o.ledger.FinalizeCreated(ctx, key, ref.ID, ref.Number); err != nil {
		o.ledgerWriteFailed(journal.Record{
			Op:                journal.OpFinalizeCreated,
			Key:               key,
			ExternalDocID:     ref.ID,
			ExternalDocNumber: ref.Number,
		}, err, log)
	}

	res = newResult(key, OutcomeCreated, "order created")
	res.ExternalDocID = ref.ID
	res.ExternalDocNumber = ref.Number
	log.Info("order created", "external_doc_id", ref.ID, "external_doc_number", ref.Number)
	return res
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, key orders.Key, message string, log *slog.Logger) {
	if err := o.ledger.FinalizeFailed(ctx, key, message); err != nil {
		o.ledgerWriteFailed(journal.Record{Op: journal.OpFinalizeFailed, Key: key, Message: message}, err, log)
	}
}

// ledgerWriteFailed escalates a lost ledger write to the log, the journal
// and observers. It never fails the order.
func (o *Orchestrator) ledgerWriteFailed(rec journal.Record, err error, log *slog.Logger) {
	log.Error("LEDGER_WRITE_ERROR", "op", string(rec.Op), "err", err)
	o.observer.LedgerWriteFailed(rec.Op, rec.Key, err)

	if o.journal == nil {
		return
	}
	rec.At = o.now().UTC()
	rec.WriteError = err.Error()
	if jerr := o.journal.Append(rec); jerr != nil {
		log.Error("journal append failed", "op", string(rec.Op), "err", jerr)
	}
}
