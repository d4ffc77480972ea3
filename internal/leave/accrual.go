// Package leave converts an approved date-range answer into the hours taken
// from the applicant's leave balance.
package leave

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-hr-leave-applications/internal/formvalue"
)

// RangeSeparator splits the start and end of a date-range answer.
const RangeSeparator = "~"

// HoursPerDay is the fixed working day used for deductions.
var HoursPerDay = decimal.RequireFromString("7.75")

// Range is an inclusive span of days.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseRange reads "<start>~<end>". Text after a second separator is ignored.
func ParseRange(s string) (Range, bool) {
	parts := strings.Split(s, RangeSeparator)
	if len(parts) < 2 {
		return Range{}, false
	}
	start, ok := formvalue.ParseDate(strings.TrimSpace(parts[0]))
	if !ok {
		return Range{}, false
	}
	end, ok := formvalue.ParseDate(strings.TrimSpace(parts[1]))
	if !ok {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

const millisPerDay = int64(24 * time.Hour / time.Millisecond)

// Days counts both endpoints: the absolute span rounded up to whole days,
// plus one. Reversed ranges count the same as ordered ones. The span is taken
// in milliseconds so it does not saturate like time.Duration.
func (r Range) Days() int64 {
	diff := r.End.UnixMilli() - r.Start.UnixMilli()
	if diff < 0 {
		diff = -diff
	}
	return (diff+millisPerDay-1)/millisPerDay + 1
}

// Hours is Days times HoursPerDay.
func (r Range) Hours() decimal.Decimal {
	return decimal.NewFromInt(r.Days()).Mul(HoursPerDay)
}

// IsLeaveTemplate reports whether a template name carries one of the leave
// keywords. Matching is a case-insensitive substring test.
func IsLeaveTemplate(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Deduction finds the first text answer containing the range separator and
// returns the hours it spans. ok is false when there is no such answer or
// when it does not parse; neither case is an error.
func Deduction(values []formvalue.Value) (hours decimal.Decimal, ok bool) {
	for _, v := range values {
		text, isText := v.AsText()
		if !isText || !strings.Contains(text, RangeSeparator) {
			continue
		}
		r, parsed := ParseRange(text)
		if !parsed {
			return decimal.Zero, false
		}
		return r.Hours(), true
	}
	return decimal.Zero, false
}
