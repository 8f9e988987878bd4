package enums

import (
	"fmt"
	"slices"
	"strings"
)

// oneOf reports whether v is in valid.
func oneOf[T ~string](v T, valid []T) bool {
	return slices.Contains(valid, v)
}

// parse matches raw case-insensitively against valid. Every enum value in
// this package is lower snake case, as are the Postgres enum labels.
func parse[T ~string](raw string, valid []T, kind string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(valid, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
