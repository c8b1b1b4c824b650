package masterdata

import (
	"context"
	"fmt"
	"strings"

	"orderbridge/internal/orders"
)

// MaxReportedCodes bounds how many missing codes a failure message lists.
const MaxReportedCodes = 20

// Missing is one unknown master-data reference.
type Missing struct {
	Table Table
	Code  string
}

// Result reports whether every reference of an order exists.
type Result struct {
	OK      bool
	Missing []Missing
	Message string
}

// Checker validates orders against the master-data projection before the
// downstream commit is attempted.
type Checker struct {
	store Store
}

// NewChecker constructs a Checker over a read store.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// Validate resolves the order's effective codes and checks all of them.
// A non-nil error means the store could not answer; a failed Result means
// it answered and some references are unknown.
func (c *Checker) Validate(ctx context.Context, req orders.OrderRequest, defaults orders.Defaults) (Result, error) {
	draft := orders.Resolve(orders.Key{}, req, defaults)

	var missing []Missing
	headers := []struct {
		table Table
		code  string
	}{
		{Customers, draft.CustomerCode},
		{Salespeople, draft.SalespersonCode},
		{Warehouses, draft.WarehouseCode},
	}
	for _, h := range headers {
		if h.code == "" {
			missing = append(missing, Missing{Table: h.table})
			continue
		}
		ok, err := c.store.Exists(ctx, h.table, h.code)
		if err != nil {
			return Result{}, fmt.Errorf("check %s: %w", h.table.label(), err)
		}
		if !ok {
			missing = append(missing, Missing{Table: h.table, Code: h.code})
		}
	}

	products := distinctCodes(draft.Lines)
	unknown, err := c.store.Missing(ctx, Products, products)
	if err != nil {
		return Result{}, fmt.Errorf("check products: %w", err)
	}
	for _, code := range unknown {
		missing = append(missing, Missing{Table: Products, Code: code})
	}

	if len(missing) == 0 {
		return Result{OK: true}, nil
	}
	return Result{Missing: missing, Message: describe(missing)}, nil
}

func distinctCodes(lines []orders.Line) []string {
	seen := make(map[string]struct{}, len(lines))
	codes := make([]string, 0, len(lines))
	for _, line := range lines {
		key := Normalize(line.ProductCode)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, line.ProductCode)
	}
	return codes
}

func describe(missing []Missing) string {
	listed := missing
	if len(listed) > MaxReportedCodes {
		listed = listed[:MaxReportedCodes]
	}

	var (
		parts []string
		codes []string
		cur   Table
	)
	flush := func() {
		if len(codes) > 0 {
			parts = append(parts, cur.label()+" "+strings.Join(codes, ", "))
		}
		codes = nil
	}
	for _, m := range listed {
		if m.Table != cur {
			flush()
			cur = m.Table
		}
		code := m.Code
		if code == "" {
			code = "<unset>"
		}
		codes = append(codes, code)
	}
	flush()

	msg := "missing master data: " + strings.Join(parts, "; ")
	if extra := len(missing) - len(listed); extra > 0 {
		msg += fmt.Sprintf(" (+%d more)", extra)
	}
	return msg
}
