package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func stringOr(name, def string) string {
	if raw := lookup(name); raw != "" {
		return raw
	}
	return def
}

func requiredString(name string) (string, error) {
	raw := lookup(name)
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := lookup(name)
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	val, err := optionalDuration(name)
	if err != nil || val == nil {
		return def, err
	}
	return *val, nil
}

func optionalInt(name string) (*int, error) {
	raw := lookup(name)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func intOr(name string, def int) (int, error) {
	val, err := optionalInt(name)
	if err != nil || val == nil {
		return def, err
	}
	return *val, nil
}

func int64Or(name string, def int64) (int64, error) {
	raw := lookup(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func optionalBool(name string) (bool, error) {
	raw := lookup(name)
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func oneOf(name, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), val)
}
