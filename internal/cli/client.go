package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"orderbridge/internal/adapters/httpapi"
	"orderbridge/internal/orders"

	json "github.com/goccy/go-json"
)

// Client calls the orderbridge HTTP API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

// SubmitBatch posts envs to the batch endpoint.
func (c *Client) SubmitBatch(ctx context.Context, envs []orders.Envelope) (httpapi.BatchResponse, error) {
	body, err := json.Marshal(httpapi.BatchRequest{Orders: envs})
	if err != nil {
		return httpapi.BatchResponse{}, err
	}
	var resp httpapi.BatchResponse
	err = c.do(ctx, http.MethodPost, "/api/v1/orders/batch", bytes.NewReader(body), &resp)
	return resp, err
}

// Status fetches the ledger entry of key.
func (c *Client) Status(ctx context.Context, key orders.Key) (httpapi.StatusResponse, error) {
	path := "/api/v1/orders/" + url.PathEscape(key.ExternalOrderID) + "/" + url.PathEscape(key.InstanceID)
	var resp httpapi.StatusResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.Unmarshal(data, out)
}

func newClient(opts *RootOptions) *Client {
	return &Client{
		BaseURL: opts.Server,
		APIKey:  opts.APIKey,
		HTTP:    &http.Client{Timeout: opts.Timeout},
	}
}
