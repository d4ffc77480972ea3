// Package formvalue holds the typed answer stored for one template field and
// the codec that classifies raw client answers into it.
package formvalue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindText Kind = iota
	KindNumber
	KindDateTime
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDateTime:
		return "datetime"
	case KindBoolean:
		return "boolean"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is exactly one of Text, Number, DateTime or Boolean. The zero Value
// is the empty text.
type Value struct {
	kind     Kind
	text     string
	number   float64
	datetime time.Time
	boolean  bool
}

func Text(s string) Value        { return Value{kind: KindText, text: s} }
func Number(f float64) Value     { return Value{kind: KindNumber, number: f} }
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, datetime: t.UTC()} }
func Boolean(b bool) Value       { return Value{kind: KindBoolean, boolean: b} }
func (v Value) Kind() Kind       { return v.kind }

// AsText returns the text and whether v is a text value.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsNumber returns the number and whether v is a number value.
func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

// AsDateTime returns the timestamp and whether v is a datetime value.
func (v Value) AsDateTime() (time.Time, bool) { return v.datetime, v.kind == KindDateTime }

// AsBoolean returns the flag and whether v is a boolean value.
func (v Value) AsBoolean() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// Scalar returns the client facing representation: string, float64, bool, or
// an RFC 3339 string for datetimes.
func (v Value) Scalar() any {
	switch v.kind {
	case KindNumber:
		return v.number
	case KindDateTime:
		return v.datetime.Format(time.RFC3339Nano)
	case KindBoolean:
		return v.boolean
	default:
		return v.text
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.kind, v.Scalar())
}

// Equal reports whether both values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.number == o.number
	case KindDateTime:
		return v.datetime.Equal(o.datetime)
	case KindBoolean:
		return v.boolean == o.boolean
	default:
		return v.text == o.text
	}
}

// MarshalJSON writes the scalar form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Scalar())
}

// UnmarshalJSON classifies the scalar with the same rules as Classify.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Classify(raw)
	return nil
}
