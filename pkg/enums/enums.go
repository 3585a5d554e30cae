// Package enums holds the string enums stored in Postgres enum columns and
// returned to clients as reason codes.
package enums

import (
	"fmt"
	"slices"
)

type member interface {
	~string
}

// Parse returns the member of valid equal to raw.
func Parse[T member](raw string, valid ...T) (T, error) {
	if v := T(raw); slices.Contains(valid, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %T %q", zero, raw)
}
