package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// analysis ids are "<client_id>_<flow_id>", both parts [A-Za-z0-9._-]
var rxAnalysisID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}_[A-Za-z0-9._-]{1,64}$`)

const (
	defaultLimit = 20
	maxLimit     = 100
	defaultDays  = 7
	maxDays      = 365

	maxTextLen = 256
)

// ValidateAnalysisID cek path parameter {analysis_id}
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if !rxAnalysisID.MatchString(id) {
		return fmt.Errorf("invalid analysis ID %q (expected <client_id>_<flow_id>)", id)
	}
	return nil
}

// SanitizeString drops control characters (tab and newline survive), trims,
// and caps free-text webhook fields at 256 bytes.
func SanitizeString(input string) string {
	out := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, input)
	out = strings.TrimSpace(out)
	if len(out) > maxTextLen {
		out = strings.ToValidUTF8(out[:maxTextLen], "")
	}
	return out
}

// ParseLimit reads ?limit=; empty means default, non-numeric is an error.
func ParseLimit(raw string) (int, error) {
	n, err := parseOptionalInt("limit", raw)
	if err != nil {
		return 0, err
	}
	return ValidateLimit(n), nil
}

// ParseDays reads ?days=; empty means default, non-numeric is an error.
func ParseDays(raw string) (int, error) {
	n, err := parseOptionalInt("days", raw)
	if err != nil {
		return 0, err
	}
	return ValidateDays(n), nil
}

func parseOptionalInt(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// ValidateLimit clamps a page size into [1,100], 0 or less means 20.
func ValidateLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

// ValidateDays clamps a summary window into [1,365], 0 or less means 7.
func ValidateDays(days int) int {
	switch {
	case days <= 0:
		return defaultDays
	case days > maxDays:
		return maxDays
	}
	return days
}
