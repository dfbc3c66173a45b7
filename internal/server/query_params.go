package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseLimit returns def for an empty value and rejects non-positive limits.
func parseLimit(value string, def int) (int, error) {
	parsed, err := parseOptionalInt(value)
	if err != nil {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	if parsed == nil {
		return def, nil
	}
	if *parsed <= 0 {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	return *parsed, nil
}
