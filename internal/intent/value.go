package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindInt
	kindFloat
	kindString
)

// Value is the payload of an instruction: an integer, a decimal or a string.
// Values are comparable with ==.
type Value struct {
	kind valueKind
	i    int
	f    float64
	s    string
}

// IntValue wraps an integer payload (altitude, speed, heading, climb rate)
func IntValue(v int) Value { return Value{kind: kindInt, i: v} }

// FloatValue wraps a decimal payload (frequency)
func FloatValue(v float64) Value { return Value{kind: kindFloat, f: v} }

// StringValue wraps a string payload (runway, fix, squawk code)
func StringValue(v string) Value { return Value{kind: kindString, s: v} }

// IsZero reports whether the value is unset
func (v Value) IsZero() bool { return v.kind == kindNone }

// Int returns the integer payload
func (v Value) Int() (int, bool) { return v.i, v.kind == kindInt }

// Float returns the decimal payload
func (v Value) Float() (float64, bool) { return v.f, v.kind == kindFloat }

// Str returns the string payload
func (v Value) Str() (string, bool) { return v.s, v.kind == kindString }

// Canonical returns the value with decimals rounded to three places,
// which is the precision slot comparisons use.
func (v Value) Canonical() Value {
	if v.kind == kindFloat {
		return FloatValue(math.Round(v.f*1000) / 1000)
	}
	return v
}

func (v Value) String() string {
	switch v.kind {
	case kindInt:
		return strconv.Itoa(v.i)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case kindString:
		return v.s
	default:
		return ""
	}
}

// MarshalJSON encodes the payload as a JSON number, string or null
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindInt:
		return []byte(strconv.Itoa(v.i)), nil
	case kindFloat:
		// keep a fraction so integral decimals decode back as decimals
		if v.f == math.Trunc(v.f) {
			return []byte(strconv.FormatFloat(v.f, 'f', 1, 64)), nil
		}
		return []byte(strconv.FormatFloat(v.f, 'f', -1, 64)), nil
	case kindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes numbers without a fraction as integers
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode string value: %w", err)
		}
		*v = StringValue(s)
		return nil
	}
	if i, err := strconv.Atoi(string(data)); err == nil {
		*v = IntValue(i)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("failed to decode numeric value %q: %w", data, err)
	}
	*v = FloatValue(f)
	return nil
}
