// File: core/card/value.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged union holding one registry scalar.

package card

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag stored with every card.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindText
	KindFlag
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindFlag:
		return "flag"
	default:
		return "invalid"
	}
}

// Valid reports whether k is a known tag.
func (k Kind) Valid() bool { return k >= KindInt && k <= KindFlag }

// Value holds exactly one of int64, float64, string or bool.
// The zero Value is invalid.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a text value. Width is enforced on encode.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Flag returns a boolean value.
func Flag(v bool) Value { return Value{kind: KindFlag, b: v} }

// Kind returns the tag.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v carries a payload.
func (v Value) IsValid() bool { return v.kind.Valid() }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload. Integers widen.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsText returns the text payload.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsFlag returns the boolean payload.
func (v Value) AsFlag() (bool, bool) { return v.b, v.kind == KindFlag }

// Equal compares tag and payload. Floats compare bitwise so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindText:
		return v.s == o.s
	case KindFlag:
		return v.b == o.b
	}
	return true
}

// String renders the value the way the header dump prints it.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindText:
		return v.s
	case KindFlag:
		if v.b {
			return "T"
		}
		return "F"
	}
	return "<invalid>"
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if strings.ContainsAny(s, ".EN") {
		return s
	}
	return s + ".0"
}

// ParseValue infers a value from operator text: T/F, integer, float, then text.
func ParseValue(s string) Value {
	switch s {
	case "T", "true", "TRUE":
		return Flag(true)
	case "F", "false", "FALSE":
		return Flag(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return Text(strings.Trim(s, "'"))
}

// ParseAs parses s as the given kind.
func ParseAs(kind Kind, s string) (Value, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindFlag:
		b, err := strconv.ParseBool(s)
		if err != nil {
			switch s {
			case "T":
				return Flag(true), nil
			case "F":
				return Flag(false), nil
			}
			return Value{}, err
		}
		return Flag(b), nil
	case KindText:
		return Text(strings.Trim(s, "'")), nil
	}
	return ParseValue(s), nil
}
