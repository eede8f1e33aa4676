package utils

import (
	"fmt"
	"strconv"
	"strings"

	"dbaccountsync/pkg/errs"
)

// ParseID parses a positive numeric path or flag value.
func ParseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errs.ErrValidationFailed, raw)
	}
	return uint(id), nil
}

// OptionalID returns nil for zero so an absent id stays absent.
func OptionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

// EscapeSQL escapes single quotes for statements built as text, such as the
// fixture seed inserts.
func EscapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
