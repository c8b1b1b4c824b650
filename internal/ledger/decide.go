package ledger

import "time"

// Policy tunes the Begin decision table.
type Policy struct {
	// StaleAfter, when positive, lets a PROCESSING entry whose attempt
	// started longer ago than StaleAfter be reclaimed by a caller with the
	// same hash. Zero keeps PROCESSING entries in progress forever.
	StaleAfter time.Duration
}

// Decision is what a store must do after reading the current entry.
type Decision struct {
	Outcome Outcome
	// Reprocess is set when the existing entry must be moved back to
	// PROCESSING (retry after FAILED, or stale reclaim).
	Reprocess bool
}

// Decide evaluates the Begin decision table for an existing entry.
// The absent-entry case is handled by the store's insert.
func Decide(existing Entry, hash string, now time.Time, policy Policy) Decision {
	if existing.PayloadHash != hash {
		return Decision{Outcome: ConflictHash}
	}
	switch existing.Status {
	case StatusCreated:
		return Decision{Outcome: DuplicateCreated}
	case StatusProcessing:
		if policy.StaleAfter > 0 && !existing.ProcessingAt.IsZero() && now.Sub(existing.ProcessingAt) > policy.StaleAfter {
			return Decision{Outcome: Started, Reprocess: true}
		}
		return Decision{Outcome: InProgress}
	case StatusFailed:
		return Decision{Outcome: Started, Reprocess: true}
	default:
		// Unknown statuses are never retried automatically.
		return Decision{Outcome: InProgress}
	}
}

// Reprocessed returns the entry moved back to PROCESSING for a new attempt.
func Reprocessed(existing Entry, hash string, now time.Time) Entry {
	existing.Status = StatusProcessing
	existing.PayloadHash = hash
	existing.ErrorMessage = ""
	existing.ProcessingAt = now
	existing.UpdatedAt = now
	return existing
}
