// Package sequence allocates gap-free, human-readable document numbers such
// as INV0001 from persisted per-prefix counters.
package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Width is the minimum number of digits in a formatted number.
const Width = 4

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]{0,15}$`)

// ErrInvalidPrefix indicates an empty or malformed prefix.
var ErrInvalidPrefix = fmt.Errorf("sequence: %w: invalid prefix", shared.ErrValidation)

// ValidatePrefix checks that prefix is usable as a counter key.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w %q", ErrInvalidPrefix, prefix)
	}
	return nil
}

// Format renders n with prefix, zero padded to Width digits. Numbers wider
// than Width are rendered in full.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, Width, n)
}

// Parse extracts the numeric suffix of a number produced by Format.
func Parse(prefix, number string) (int64, bool) {
	digits, ok := strings.CutPrefix(number, prefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Highest returns the largest numeric suffix among numbers that carry prefix.
func Highest(prefix string, numbers []string) int64 {
	var max int64
	for _, number := range numbers {
		if n, ok := Parse(prefix, number); ok && n > max {
			max = n
		}
	}
	return max
}
