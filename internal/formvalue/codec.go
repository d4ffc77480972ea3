package formvalue

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// datePrefix is the "looks like a date" test applied to string answers.
var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// dateLayouts are the accepted date and date-time spellings. Anything without
// a zone is read as UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04",
}

// bareDate is a calendar date with no time part. Days past the end of the
// month roll into the next one ("2025-02-30" is March 2nd).
var bareDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// ParseDate parses s with the accepted layouts. Surrounding whitespace is
// ignored.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return parseOverflowDate(s)
}

func parseOverflowDate(s string) (time.Time, bool) {
	m := bareDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// Classify maps a raw answer to a Value. Numbers and booleans keep their type.
// A string becomes a datetime only when it starts with YYYY-MM-DD and the whole
// string parses as a date; every other input is text. Classify never fails.
//
// The rule is kept exactly as clients rely on it: a free-text answer that
// happens to be a bare date is stored as a datetime, and a date range such as
// "2025-01-10~2025-01-12" stays text because it does not parse as one date.
func Classify(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return Number(v)
	case float32:
		return Number(float64(v))
	case int:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return Number(f)
		}
		return Text(v.String())
	case bool:
		return Boolean(v)
	case string:
		if datePrefix.MatchString(v) {
			if t, ok := ParseDate(v); ok {
				return DateTime(t)
			}
		}
		return Text(v)
	case nil:
		return Text("")
	default:
		return Text(fmt.Sprint(v))
	}
}

// Columns is the four-column storage shape: exactly one field is non-nil.
type Columns struct {
	Text     *string
	Number   *float64
	DateTime *time.Time
	Boolean  *bool
}

// ToColumns spreads v over the storage columns.
func ToColumns(v Value) Columns {
	switch v.kind {
	case KindNumber:
		n := v.number
		return Columns{Number: &n}
	case KindDateTime:
		t := v.datetime
		return Columns{DateTime: &t}
	case KindBoolean:
		b := v.boolean
		return Columns{Boolean: &b}
	default:
		s := v.text
		return Columns{Text: &s}
	}
}

// FromColumns rebuilds a Value from storage. It fails when the row does not
// hold exactly one populated column.
func FromColumns(c Columns) (Value, error) {
	var set []string
	var v Value
	if c.Text != nil {
		set = append(set, "text")
		v = Text(*c.Text)
	}
	if c.Number != nil {
		set = append(set, "number")
		v = Number(*c.Number)
	}
	if c.DateTime != nil {
		set = append(set, "datetime")
		v = DateTime(*c.DateTime)
	}
	if c.Boolean != nil {
		set = append(set, "boolean")
		v = Boolean(*c.Boolean)
	}
	if len(set) != 1 {
		return Value{}, fmt.Errorf("expected exactly one value column, got %d (%s)", len(set), strings.Join(set, ","))
	}
	return v, nil
}
