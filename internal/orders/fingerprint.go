package orders

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FingerprintDomain separates order fingerprints from any other SHA-256
// digest the system may compute. The version suffix allows a future change
// of the canonical form without silently colliding with stored hashes.
const FingerprintDomain = "orderbridge/order/v1"

// CanonicalJSON renders the client-supplied content of an order in a stable
// form: sorted object keys, no HTML escaping, trimmed NFC strings and
// decimals without trailing zeros. Line order is preserved.
func CanonicalJSON(r OrderRequest) ([]byte, error) {
	lines := make([]any, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, map[string]any{
			"productCode":     canonicalString(line.ProductCode),
			"quantity":        line.Quantity.String(),
			"unitPrice":       line.UnitPrice.String(),
			"discountPercent": line.DiscountPercent.String(),
		})
	}
	doc := map[string]any{
		"orderDate":         canonicalString(r.OrderDate),
		"warehouseCode":     canonicalString(r.WarehouseCode),
		"sellerCode":        canonicalString(r.SellerCode),
		"customerReference": canonicalString(r.CustomerReference),
		"comments":          canonicalString(r.Comments),
		"lines":             lines,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("canonical order: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Fingerprint returns the hex SHA-256 of the order's canonical form.
func Fingerprint(r OrderRequest) (string, error) {
	canonical, err := CanonicalJSON(r)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(FingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
