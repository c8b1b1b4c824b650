// Package masterdata checks order references against a read-only projection
// of the ERP master tables.
package masterdata

import (
	"context"
	"strings"
)

// Table names one master-data set.
type Table string

const (
	Customers   Table = "customers"
	Salespeople Table = "salespeople"
	Warehouses  Table = "warehouses"
	Products    Table = "products"
)

// Tables lists every master-data set in reporting order.
var Tables = []Table{Customers, Salespeople, Warehouses, Products}

// SQLName is the backing table in the relational projection.
func (t Table) SQLName() string { return "md_" + string(t) }

// RedisKey is the set holding the table's lower-cased codes.
func (t Table) RedisKey() string { return "md:" + string(t) }

func (t Table) label() string {
	switch t {
	case Customers:
		return "customer"
	case Salespeople:
		return "salesperson"
	case Warehouses:
		return "warehouse"
	case Products:
		return "product"
	default:
		return string(t)
	}
}

// Store answers membership questions against the projection. Lookups are
// case-insensitive. Missing returns the subset of codes that do not exist,
// in input order.
type Store interface {
	Exists(ctx context.Context, table Table, code string) (bool, error)
	Missing(ctx context.Context, table Table, codes []string) ([]string, error)
}

// Normalize folds a code to its lookup form.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
