package cli

import (
	"bytes"
	"fmt"
	"os"

	"orderbridge/internal/orders"

	json "github.com/goccy/go-json"
)

// readBatch loads orders from path. The file holds either a batch document
// {"orders":[...]} or a single order envelope.
func readBatch(path string) ([]orders.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if raw, ok := probe["orders"]; ok {
		var envs []orders.Envelope
		if err := json.Unmarshal(raw, &envs); err != nil {
			return nil, fmt.Errorf("%s: orders: %w", path, err)
		}
		if len(envs) == 0 {
			return nil, fmt.Errorf("%s: batch has no orders", path)
		}
		return envs, nil
	}

	var env orders.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []orders.Envelope{env}, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
