package naming

import "strings"

const (
	minLen = 2
	maxLen = 64
)

// IsValidName enforces the taxonomy node naming rule: 2-64 characters,
// alphanumeric plus space/hyphen separators, no leading/trailing separator
// and no doubled separators.
func IsValidName(name string) bool {
	if len(name) < minLen || len(name) > maxLen {
		return false
	}
	prevSep := true // a separator at position 0 is a leading separator
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			prevSep = false
		case r == ' ' || r == '-':
			if prevSep {
				return false
			}
			prevSep = true
		default:
			return false
		}
	}
	return !prevSep
}

// ValidateAll returns the subset of names that fail IsValidName, preserving
// input order, for per-sheet validation reports.
func ValidateAll(names []string) []string {
	var bad []string
	for _, n := range names {
		if !IsValidName(strings.TrimSpace(n)) {
			bad = append(bad, n)
		}
	}
	return bad
}
