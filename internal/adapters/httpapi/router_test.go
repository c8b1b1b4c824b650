package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"orderbridge/internal/commit"
	"orderbridge/internal/gateway"
	"orderbridge/internal/ledger"
	"orderbridge/internal/masterdata"
	"orderbridge/internal/observability"
	"orderbridge/internal/orders"
	"orderbridge/internal/reliability"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchBody = `{"orders":[{"externalOrderId":"O1","instanceId":"I1","businessObject":{"orderDate":"2024-03-01","customerReference":"R1","lines":[{"productCode":"A","quantity":"2","unitPrice":"9.90"}]}}]}`

type stubService struct {
	mu      sync.Mutex
	batches [][]orders.Envelope
	entry   ledger.Entry
	err     error
}

func (s *stubService) ProcessBatch(_ context.Context, envs []orders.Envelope) []commit.Result {
	s.mu.Lock()
	s.batches = append(s.batches, envs)
	s.mu.Unlock()

	results := make([]commit.Result, 0, len(envs))
	for _, env := range envs {
		key := env.Key()
		results = append(results, commit.Result{
			ExternalOrderID: key.ExternalOrderID,
			InstanceID:      key.InstanceID,
			Outcome:         commit.OutcomeCreated,
			ExternalDocID:   "100",
		})
	}
	return results
}

func (s *stubService) Status(_ context.Context, key orders.Key) (ledger.Entry, error) {
	if s.err != nil {
		return ledger.Entry{}, s.err
	}
	entry := s.entry
	entry.Key = key
	return entry, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAssignsRequestID(t *testing.T) {
	h := NewRouter(Config{Service: &stubService{}})

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get(headerRequestID), 36)

	rec = do(t, h, http.MethodGet, "/healthz", "", map[string]string{headerRequestID: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))
}

func TestSubmitBatch(t *testing.T) {
	svc := &stubService{}
	h := NewRouter(Config{Service: svc, APIKey: "secret"})

	rec := do(t, h, http.MethodPost, "/api/v1/orders/batch", batchBody, map[string]string{
		headerAPIKey:    "secret",
		headerRequestID: "req-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, commit.OutcomeCreated, resp.Results[0].Outcome)
	assert.Equal(t, "O1", resp.Results[0].ExternalOrderID)

	require.Len(t, svc.batches, 1)
	line := svc.batches[0][0].BusinessObject.Lines[0]
	assert.Equal(t, "9.9", line.UnitPrice.String())
}

func TestSubmitBatchRejectsBadBodies(t *testing.T) {
	svc := &stubService{}
	h := NewRouter(Config{Service: svc})

	for name, body := range map[string]string{
		"empty list":   `{"orders":[]}`,
		"absent list":  `{}`,
		"malformed":    `{"orders":[`,
		"wrong shape":  `{"orders":{"a":1}}`,
		"empty string": ``,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/orders/batch", body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Empty(t, svc.batches)
}

func TestAPIKeyRequired(t *testing.T) {
	h := NewRouter(Config{Service: &stubService{}, APIKey: "secret"})

	rec := do(t, h, http.MethodPost, "/api/v1/orders/batch", batchBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", map[string]string{headerAPIKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOutcomeFeedRequiresAPIKey(t *testing.T) {
	feed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewRouter(Config{Service: &stubService{}, APIKey: "secret", Feed: feed})

	rec := do(t, h, http.MethodGet, "/ws/outcomes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/ws/outcomes", "", map[string]string{headerAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/ws/outcomes", "", map[string]string{headerAPIKey: "secret"})
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestOrderStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{entry: ledger.Entry{
		Status:            ledger.StatusCreated,
		PayloadHash:       "h1",
		ExternalDocID:     "100",
		ExternalDocNumber: "1000",
		ProcessingAt:      at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}}
	h := NewRouter(Config{Service: svc})

	rec := do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "O1", resp.ExternalOrderID)
	assert.Equal(t, "I1", resp.InstanceID)
	assert.Equal(t, "CREATED", resp.Status)
	assert.Equal(t, "1000", resp.ExternalDocNumber)
	assert.True(t, resp.UpdatedAt.Equal(at))
	assert.NotContains(t, rec.Body.String(), "errorMessage")
}

func TestOrderStatusErrors(t *testing.T) {
	svc := &stubService{err: ledger.ErrNotFound}
	h := NewRouter(Config{Service: svc})

	rec := do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.err = errors.New("pq: connection reset")
	rec = do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestRateLimitRejects(t *testing.T) {
	stats := observability.NewStats()
	h := NewRouter(Config{
		Service: &stubService{},
		Limiter: reliability.NewRateLimiter(time.Hour, 1),
		Stats:   stats,
	})

	rec := do(t, h, http.MethodPost, "/api/v1/orders/batch", batchBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/batch", batchBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.RateLimitRejects)
	assert.Equal(t, int64(1), snap.Routes["POST /api/v1/orders/batch"].Count)
}

func TestStatsCountServerErrors(t *testing.T) {
	stats := observability.NewStats()
	h := NewRouter(Config{Service: &stubService{err: errors.New("down")}, Stats: stats})

	do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", nil)

	route := stats.Snapshot().Routes["GET /api/v1/orders/{key}"]
	assert.Equal(t, int64(1), route.Count)
	assert.Equal(t, int64(1), route.Errors)
}

type fixedCommitter struct{ calls int }

func (c *fixedCommitter) CreateOrder(context.Context, orders.Draft) (gateway.DocRef, error) {
	c.calls++
	return gateway.DocRef{ID: "100", Number: "1000"}, nil
}

func TestBatchThroughOrchestrator(t *testing.T) {
	master := masterdata.NewMemoryStore()
	master.Add(masterdata.Customers, "CUST")
	master.Add(masterdata.Salespeople, "SP-1")
	master.Add(masterdata.Warehouses, "WH-1")
	master.Add(masterdata.Products, "A")
	committer := &fixedCommitter{}

	svc := commit.New(commit.Config{
		Ledger:    ledger.NewMemoryStore(ledger.Policy{}),
		Validator: masterdata.NewChecker(master),
		Committer: committer,
		Defaults:  orders.Defaults{CustomerCode: "CUST", SalespersonCode: "SP-1", WarehouseCode: "WH-1"},
	})
	h := NewRouter(Config{Service: svc})

	var outcomes []commit.Outcome
	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/orders/batch", batchBody, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		outcomes = append(outcomes, resp.Results[0].Outcome)
	}
	assert.Equal(t, []commit.Outcome{commit.OutcomeCreated, commit.OutcomeDuplicate}, outcomes)
	assert.Equal(t, 1, committer.calls)

	rec := do(t, h, http.MethodGet, "/api/v1/orders/O1/I1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CREATED"`)
}
