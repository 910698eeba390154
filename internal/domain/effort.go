package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var (
	// MaxEntryEffort bounds daily entries, person totals and item estimates (5,2).
	MaxEntryEffort = decimal.RequireFromString("999.99")
	// MaxProjectEffort bounds a project's own estimate (7,2).
	MaxProjectEffort = decimal.RequireFromString("99999.99")

	// beyondEffort stands in for magnitudes no effort column can hold.
	beyondEffort = decimal.RequireFromString("100000")
)

// maxEffortDigits is the most integer digits an input may carry before it
// is settled by magnitude alone.
const maxEffortDigits = 7

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsDateKey reports whether a grid column name addresses a calendar day.
func IsDateKey(key string) bool {
	if !dateKeyPattern.MatchString(key) {
		return false
	}
	_, err := time.Parse(DateLayout, key)
	return err == nil
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeEffort turns a raw cell value into a storable entry effort.
// Missing or unparsable input becomes 0, negatives become 0, anything above
// 999.99 becomes 999.99 and the rest is rounded half-up to 2 decimals.
func NormalizeEffort(raw any) decimal.Decimal {
	d, ok := effortFrom(raw)
	if !ok {
		return decimal.Zero
	}
	return ClampEffort(d)
}

// ClampEffort rounds to 2 decimals and clamps into [0, 999.99].
func ClampEffort(d decimal.Decimal) decimal.Decimal {
	d, huge := tame(d)
	if huge {
		if d.IsNegative() {
			return decimal.Zero
		}
		return MaxEntryEffort
	}
	d = d.Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(MaxEntryEffort) {
		return MaxEntryEffort
	}
	return d
}

// ParseEffort is the strict counterpart of NormalizeEffort used for
// estimates, where bad input is reported rather than coerced.
func ParseEffort(raw any) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, ok := effortFrom(raw)
	if !ok {
		return decimal.Zero, fmt.Errorf("is not a number")
	}
	d, huge := tame(d)
	if huge {
		// Left out of range so the caller's limit check reports it.
		if d.IsNegative() {
			return beyondEffort.Neg(), nil
		}
		return beyondEffort, nil
	}
	return d.Round(2), nil
}

// tame settles values by magnitude before anything rescales them: rounding
// an exponent like 1e999999999 would build a billion-digit integer. Values
// far below a cent collapse to zero; huge reports more than maxEffortDigits
// integer digits.
func tame(d decimal.Decimal) (v decimal.Decimal, huge bool) {
	if d.IsZero() {
		return decimal.Zero, false
	}
	m := intDigits(d)
	switch {
	case m > maxEffortDigits:
		return d, true
	case m < -3:
		return decimal.Zero, false
	}
	return d, false
}

// ValidateEstimate checks an estimate against [0, limit].
func ValidateEstimate(d, limit decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("must be greater than or equal to 0")
	}
	if d.GreaterThan(limit) {
		return fmt.Errorf("must be less than or equal to %s", limit.StringFixed(2))
	}
	return nil
}

func effortFrom(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// intDigits is the position of the leading digit relative to the decimal
// point: 3 for 123.4, 0 for 0.5, -2 for 0.004. d must be non-zero.
func intDigits(d decimal.Decimal) int {
	return d.NumDigits() + int(d.Exponent())
}
