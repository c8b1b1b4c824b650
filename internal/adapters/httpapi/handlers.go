package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"orderbridge/internal/commit"
	"orderbridge/internal/ledger"
	"orderbridge/internal/orders"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// BatchRequest is the body of POST /api/v1/orders/batch.
type BatchRequest struct {
	Orders []orders.Envelope `json:"orders"`
}

// BatchResponse carries one result per submitted order, in order.
type BatchResponse struct {
	RequestID string          `json:"requestId"`
	Results   []commit.Result `json:"results"`
}

// StatusResponse is the public projection of a ledger entry.
type StatusResponse struct {
	ExternalOrderID   string    `json:"externalOrderId"`
	InstanceID        string    `json:"instanceId"`
	Status            string    `json:"status"`
	PayloadHash       string    `json:"payloadHash"`
	ExternalDocID     string    `json:"externalDocId,omitempty"`
	ExternalDocNumber string    `json:"externalDocNumber,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	ProcessingAt      time.Time `json:"processingAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) submitBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestID(r.Context())

	var body BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "request body is not a valid order batch")
		return
	}
	if len(body.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "orders must contain at least one order")
		return
	}

	results := a.service.ProcessBatch(r.Context(), body.Orders)
	if err := r.Context().Err(); err != nil {
		a.logger.Warn("batch request ended early", "request_id", reqID, "err", err)
	}

	counts := make(map[commit.Outcome]int)
	for _, res := range results {
		counts[res.Outcome]++
	}
	a.logger.Info("batch processed", "request_id", reqID, "orders", len(results), "created", counts[commit.OutcomeCreated], "duplicate", counts[commit.OutcomeDuplicate])

	writeJSON(w, http.StatusOK, BatchResponse{RequestID: reqID, Results: results})
}

func (a *api) orderStatus(w http.ResponseWriter, r *http.Request) {
	key := orders.Key{
		ExternalOrderID: strings.TrimSpace(chi.URLParam(r, "externalOrderId")),
		InstanceID:      strings.TrimSpace(chi.URLParam(r, "instanceId")),
	}
	if key.ExternalOrderID == "" || key.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "externalOrderId and instanceId are required")
		return
	}

	entry, err := a.service.Status(r.Context(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		a.logger.Error("ledger lookup", "request_id", RequestID(r.Context()), "external_order_id", key.ExternalOrderID, "instance_id", key.InstanceID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "order ledger unavailable")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		ExternalOrderID:   entry.Key.ExternalOrderID,
		InstanceID:        entry.Key.InstanceID,
		Status:            string(entry.Status),
		PayloadHash:       entry.PayloadHash,
		ExternalDocID:     entry.ExternalDocID,
		ExternalDocNumber: entry.ExternalDocNumber,
		ErrorMessage:      entry.ErrorMessage,
		ProcessingAt:      entry.ProcessingAt,
		CreatedAt:         entry.CreatedAt,
		UpdatedAt:         entry.UpdatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
