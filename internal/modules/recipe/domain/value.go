package domain

import (
	"fmt"
	"math"
	"strconv"
)

type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

func (k Kind) Validate() error {
	switch k {
	case KindInt, KindFloat, KindBool, KindString:
		return nil
	default:
		return fmt.Errorf("unknown value kind %q", string(k))
	}
}

// Value is a tagged variant over the scalar types CPL parameters carry.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }

// ParseValue converts command-line text to a value of the given kind.
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a valid int", raw)
		}
		return Int(v), nil
	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Value{}, fmt.Errorf("%q is not a valid float", raw)
		}
		return Float(v), nil
	case KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a valid bool", raw)
		}
		return Bool(v), nil
	case KindString:
		return String(raw), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", string(kind))
	}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsZero() bool { return v.kind == "" }

func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func (v Value) Equal(other Value) bool {
	return v == other
}

// Coerce converts v to kind. Ints widen to floats and strings are parsed;
// every other mismatch is an error.
func (v Value) Coerce(kind Kind) (Value, error) {
	if v.kind == kind {
		return v, nil
	}
	switch {
	case v.kind == KindInt && kind == KindFloat:
		return Float(float64(v.i)), nil
	case v.kind == KindString:
		return ParseValue(kind, v.s)
	default:
		return Value{}, fmt.Errorf("%s value %s does not fit %s", v.kind, v.String(), kind)
	}
}

// CheckNative reports whether v can be handed to CPL unchanged. CPL ints
// are C ints and doubles must be finite.
func (v Value) CheckNative() error {
	switch v.kind {
	case KindInt:
		if v.i < math.MinInt32 || v.i > math.MaxInt32 {
			return fmt.Errorf("value %d outside the 32-bit int range", v.i)
		}
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("value %s is not a finite number", v)
		}
	}
	return nil
}

// compare orders two values of the same numeric kind.
func compare(a, b Value) int {
	switch a.kind {
	case KindInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
	case KindFloat:
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		}
	}
	return 0
}
