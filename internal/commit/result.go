package commit

import "orderbridge/internal/orders"

// Outcome is the terminal state of one order in a batch.
type Outcome string

const (
	OutcomeCreated             Outcome = "CREATED"
	OutcomeDuplicate           Outcome = "DUPLICATE"
	OutcomeInProgress          Outcome = "IN_PROGRESS"
	OutcomeConflictHash        Outcome = "CONFLICT_HASH"
	OutcomePrevalidationFailed Outcome = "PREVALIDATION_FAILED"
	OutcomeCommitError         Outcome = "COMMIT_ERROR"
	OutcomeValidation          Outcome = "VALIDATION"
	OutcomeLedgerError         Outcome = "LEDGER_ERROR"
	OutcomeCanceled            Outcome = "CANCELED"
)

// Succeeded reports whether the order exists downstream.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCreated || o == OutcomeDuplicate
}

// Retryable reports whether resubmitting the same payload can change the
// outcome.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeInProgress, OutcomeCommitError, OutcomeLedgerError, OutcomeCanceled, OutcomePrevalidationFailed:
		return true
	default:
		return false
	}
}

// Result is the per-order answer returned to the caller. Message is safe to
// show to the submitter.
type Result struct {
	ExternalOrderID   string  `json:"externalOrderId"`
	InstanceID        string  `json:"instanceId"`
	Outcome           Outcome `json:"outcome"`
	ExternalDocID     string  `json:"externalDocId,omitempty"`
	ExternalDocNumber string  `json:"externalDocNumber,omitempty"`
	ErrorCode         string  `json:"errorCode,omitempty"`
	Message           string  `json:"message,omitempty"`
}

// Key returns the order key the result belongs to.
func (r Result) Key() orders.Key {
	return orders.Key{ExternalOrderID: r.ExternalOrderID, InstanceID: r.InstanceID}
}

func newResult(key orders.Key, outcome Outcome, message string) Result {
	res := Result{
		ExternalOrderID: key.ExternalOrderID,
		InstanceID:      key.InstanceID,
		Outcome:         outcome,
		Message:         message,
	}
	if !outcome.Succeeded() {
		res.ErrorCode = string(outcome)
	}
	return res
}
