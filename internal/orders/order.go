package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation marks a structurally malformed submission. It is rejected
// before the ledger is consulted.
var ErrValidation = errors.New("invalid order submission")

// DateLayout is the wire and canonical layout of OrderRequest.OrderDate.
const DateLayout = "2006-01-02"

// MaxLines bounds the number of line items accepted in one order.
const MaxLines = 500

var hundred = decimal.NewFromInt(100)

// Key is the idempotency key of a submission.
type Key struct {
	ExternalOrderID string `json:"externalOrderId"`
	InstanceID      string `json:"instanceId"`
}

func (k Key) String() string {
	return k.ExternalOrderID + "/" + k.InstanceID
}

// Line is one line item of an order.
type Line struct {
	ProductCode     string          `json:"productCode"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// OrderRequest is the normalized business payload of a submission.
type OrderRequest struct {
	OrderDate         string `json:"orderDate"`
	WarehouseCode     string `json:"warehouseCode,omitempty"`
	SellerCode        string `json:"sellerCode,omitempty"`
	CustomerReference string `json:"customerReference"`
	Comments          string `json:"comments,omitempty"`
	Lines             []Line `json:"lines"`
}

// Envelope wraps one order of an inbound batch.
type Envelope struct {
	ExternalOrderID string       `json:"externalOrderId"`
	InstanceID      string       `json:"instanceId"`
	BusinessObject  OrderRequest `json:"businessObject"`
}

// Key returns the idempotency key of the envelope.
func (e Envelope) Key() Key {
	return Key{
		ExternalOrderID: strings.TrimSpace(e.ExternalOrderID),
		InstanceID:      strings.TrimSpace(e.InstanceID),
	}
}

// Validate checks the envelope shape. Every returned error wraps ErrValidation.
func (e Envelope) Validate() error {
	key := e.Key()
	if key.ExternalOrderID == "" {
		return fmt.Errorf("%w: externalOrderId is required", ErrValidation)
	}
	if key.InstanceID == "" {
		return fmt.Errorf("%w: instanceId is required", ErrValidation)
	}
	return e.BusinessObject.Validate()
}

// Validate checks the order payload shape.
func (r OrderRequest) Validate() error {
	if _, err := time.Parse(DateLayout, strings.TrimSpace(r.OrderDate)); err != nil {
		return fmt.Errorf("%w: orderDate must be formatted as %s", ErrValidation, DateLayout)
	}
	if strings.TrimSpace(r.CustomerReference) == "" {
		return fmt.Errorf("%w: customerReference is required", ErrValidation)
	}
	if len(r.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	if len(r.Lines) > MaxLines {
		return fmt.Errorf("%w: at most %d lines are allowed", ErrValidation, MaxLines)
	}
	for i, line := range r.Lines {
		if strings.TrimSpace(line.ProductCode) == "" {
			return fmt.Errorf("%w: lines[%d].productCode is required", ErrValidation, i)
		}
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("%w: lines[%d].quantity must be > 0", ErrValidation, i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: lines[%d].unitPrice must be >= 0", ErrValidation, i)
		}
		if line.DiscountPercent.IsNegative() || line.DiscountPercent.GreaterThan(hundred) {
			return fmt.Errorf("%w: lines[%d].discountPercent must be within [0,100]", ErrValidation, i)
		}
	}
	return nil
}

// Defaults are the master-data codes applied when an order carries no hint.
type Defaults struct {
	CustomerCode    string
	SalespersonCode string
	WarehouseCode   string
}

// Draft is the order as it will be created downstream: hints resolved
// against Defaults and strings trimmed.
type Draft struct {
	Key               Key
	OrderDate         string
	CustomerCode      string
	SalespersonCode   string
	WarehouseCode     string
	CustomerReference string
	Comments          string
	Lines             []Line
}

// Resolve builds the downstream draft for an order. The customer is always
// the configured default; warehouse and salesperson prefer the order's hints.
func Resolve(key Key, r OrderRequest, d Defaults) Draft {
	draft := Draft{
		Key:               key,
		OrderDate:         strings.TrimSpace(r.OrderDate),
		CustomerCode:      strings.TrimSpace(d.CustomerCode),
		SalespersonCode:   firstNonEmpty(r.SellerCode, d.SalespersonCode),
		WarehouseCode:     firstNonEmpty(r.WarehouseCode, d.WarehouseCode),
		CustomerReference: strings.TrimSpace(r.CustomerReference),
		Comments:          strings.TrimSpace(r.Comments),
		Lines:             make([]Line, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		line.ProductCode = strings.TrimSpace(line.ProductCode)
		draft.Lines = append(draft.Lines, line)
	}
	return draft
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
