package ledger

import (
	"context"
	"errors"
	"time"

	"orderbridge/internal/orders"
)

// Status is the processing state of a ledger entry.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCreated    Status = "CREATED"
	StatusFailed     Status = "FAILED"
)

// Entry is the ledger row of one order key.
type Entry struct {
	Key               orders.Key
	Status            Status
	PayloadHash       string
	ExternalDocID     string
	ExternalDocNumber string
	ErrorMessage      string
	ProcessingAt      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Outcome is the result of Begin.
type Outcome int

const (
	// Started means the caller owns the key and must finalize it.
	Started Outcome = iota + 1
	// DuplicateCreated means the key was already committed downstream.
	DuplicateCreated
	// InProgress means another attempt currently owns the key.
	InProgress
	// ConflictHash means the key was seen with different content.
	ConflictHash
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case DuplicateCreated:
		return "duplicate_created"
	case InProgress:
		return "in_progress"
	case ConflictHash:
		return "conflict_hash"
	default:
		return "unknown"
	}
}

// BeginResult carries the Begin outcome and the entry as it stands after
// the call.
type BeginResult struct {
	Outcome Outcome
	Entry   Entry
}

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("ledger entry not found")

// Store is the idempotency ledger.
//
// Begin runs the read-decide-write sequence under an exclusive lock scoped
// to the key, so concurrent callers on one key are serialized and at most
// one of them observes Started.
type Store interface {
	Begin(ctx context.Context, key orders.Key, hash string) (BeginResult, error)
	FinalizeCreated(ctx context.Context, key orders.Key, docID, docNumber string) error
	FinalizeFailed(ctx context.Context, key orders.Key, message string) error
	Get(ctx context.Context, key orders.Key) (Entry, error)
}
