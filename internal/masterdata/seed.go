package masterdata

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is a full snapshot of the master tables, as loaded from YAML:
//
//	customers: [C001]
//	salespeople: ["7"]
//	warehouses: [WH1]
//	products: [A-100, B-200]
type Seed struct {
	Customers   []string `yaml:"customers"`
	Salespeople []string `yaml:"salespeople"`
	Warehouses  []string `yaml:"warehouses"`
	Products    []string `yaml:"products"`
}

// Codes returns the seed's codes for a table.
func (s Seed) Codes(t Table) []string {
	switch t {
	case Customers:
		return s.Customers
	case Salespeople:
		return s.Salespeople
	case Warehouses:
		return s.Warehouses
	case Products:
		return s.Products
	default:
		return nil
	}
}

// Replacer swaps the contents of one table.
type Replacer interface {
	Replace(ctx context.Context, table Table, codes []string) error
}

// ParseSeed decodes a YAML seed, rejecting unknown keys.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("parse master data seed: %w", err)
	}
	return seed, nil
}

// LoadSeedFile reads and decodes a YAML seed file.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read master data seed: %w", err)
	}
	return ParseSeed(data)
}

// Apply replaces every table in r with the seed's codes.
func (s Seed) Apply(ctx context.Context, r Replacer) error {
	for _, t := range Tables {
		if err := r.Replace(ctx, t, s.Codes(t)); err != nil {
			return fmt.Errorf("replace %s: %w", t, err)
		}
	}
	return nil
}
