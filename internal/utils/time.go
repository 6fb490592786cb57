package utils

import (
	"time"
)

// FormatTimeOrNA renders t as RFC 3339 in UTC, or "N/A" when unset.
func FormatTimeOrNA(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(time.RFC3339)
}

// YesNo renders a flag for spreadsheet exports.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
