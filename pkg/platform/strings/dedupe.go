// Package strings provides string-slice utilities used for credential type sets.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  VerifiableCredential ", "X", "X", ""})
//	// Returns: []string{"VerifiableCredential", "X"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Without returns values minus every element of excluded, preserving order.
func Without(values []string, excluded ...string) []string {
	if len(values) == 0 {
		return values
	}
	drop := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		drop[e] = struct{}{}
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := drop[v]; !ok {
			result = append(result, v)
		}
	}
	return result
}

// IsSubset reports whether every element of subset is in set.
// An empty subset is a subset of anything.
func IsSubset(subset, set []string) bool {
	index := make(map[string]struct{}, len(set))
	for _, s := range set {
		index[s] = struct{}{}
	}
	for _, s := range subset {
		if _, ok := index[s]; !ok {
			return false
		}
	}
	return true
}
