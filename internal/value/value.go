// Package value implements qwery's runtime Value sum type (spec §9 design
// notes: "replace reflective type probing with an explicit Value sum type").
// Grounded on razeghi71-dq/table/table.go's tagged-struct Value, extended
// with Bytes/Date/Array/Object per the design notes' full variant list.
package value

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindDate
	KindArray
	KindObject
)

// Value is a dynamically-typed cell in a Row. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	by    []byte
	t     time.Time
	arr   []Value
	obj   map[string]Value
	order []string // insertion order for obj, so Object round-trips stably
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(v bool) Value            { return Value{Kind: KindBool, b: v} }
func Int64(v int64) Value          { return Value{Kind: KindInt64, i: v} }
func Float64(v float64) Value      { return Value{Kind: KindFloat64, f: v} }
func String(v string) Value        { return Value{Kind: KindString, s: v} }
func Bytes(v []byte) Value         { return Value{Kind: KindBytes, by: v} }
func Date(v time.Time) Value       { return Value{Kind: KindDate, t: v} }
func Array(vs []Value) Value       { return Value{Kind: KindArray, arr: vs} }

// Object builds an object Value, preserving the given key order.
func Object(keys []string, vals map[string]Value) Value {
	cp := make(map[string]Value, len(vals))
	ord := make([]string, len(keys))
	copy(ord, keys)
	for k, v := range vals {
		cp[k] = v
	}
	return Value{Kind: KindObject, obj: cp, order: ord}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// TypeName returns the canonical runtime type name used by DESCRIBE (spec §4.8).
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// AsFloat coerces numeric kinds to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt64:
		return float64(v.i), true
	case KindFloat64:
		return v.f, true
	case KindString:
		f, err := cast.ToFloat64E(v.s)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsInt coerces numeric (whole-valued) kinds to int64.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt64:
		return v.i, true
	case KindFloat64:
		// Truncates toward zero on a non-integral float (e.g. CAST(2.9 AS INTEGER) -> 2).
		return int64(v.f), true
	case KindString:
		n, err := cast.ToInt64E(v.s)
		return n, err == nil
	default:
		return 0, false
	}
}

// AsBool coerces to boolean for three-valued logical operations. The second
// return is false when the value is not a bool, null included.
func (v Value) AsBool() (bool, bool) {
	switch v.Kind {
	case KindBool:
		return v.b, true
	case KindNull:
		return false, false
	default:
		return false, false
	}
}

// AsString renders a single-line string representation, used by DESCRIBE's
// Sample column and by delimited-text writers.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("%x", v.by)
	case KindDate:
		return v.t.Format(time.RFC3339)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		parts := make([]string, 0, len(v.order))
		for _, k := range v.order {
			parts = append(parts, k+":"+v.obj[k].AsString())
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return ""
	}
}

// Str returns the raw string payload; only meaningful when Kind == KindString.
func (v Value) Str() string { return v.s }

// Elements returns the array payload; only meaningful when Kind == KindArray.
func (v Value) Elements() []Value { return v.arr }

// Fields returns the object payload and its key order; only meaningful when
// Kind == KindObject.
func (v Value) Fields() ([]string, map[string]Value) { return v.order, v.obj }

// BytesVal returns the raw bytes payload; only meaningful when Kind == KindBytes.
func (v Value) BytesVal() []byte { return v.by }

// TimeVal returns the date payload; only meaningful when Kind == KindDate.
func (v Value) TimeVal() time.Time { return v.t }

// Equal implements three-valued equality: NULL is only equal to NULL.
func (v Value) Equal(other Value) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	if af, aok := v.AsFloat(); aok {
		if bf, bok := other.AsFloat(); bok {
			return af == bf
		}
	}
	if v.Kind == KindString && other.Kind == KindString {
		return v.s == other.s
	}
	if v.Kind == KindBool && other.Kind == KindBool {
		return v.b == other.b
	}
	if v.Kind == KindDate && other.Kind == KindDate {
		return v.t.Equal(other.t)
	}
	return v.AsString() == other.AsString()
}

// Compare orders two values for ORDER BY / sort. ok is false when the two
// values are not comparable (e.g. object vs array); nulls sort last.
func (v Value) Compare(other Value) (cmp int, ok bool) {
	if v.IsNull() && other.IsNull() {
		return 0, true
	}
	if v.IsNull() {
		return 1, true
	}
	if other.IsNull() {
		return -1, true
	}
	if af, aok := v.AsFloat(); aok {
		if bf, bok := other.AsFloat(); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if v.Kind == KindString && other.Kind == KindString {
		return strings.Compare(v.s, other.s), true
	}
	if v.Kind == KindBool && other.Kind == KindBool {
		switch {
		case v.b == other.b:
			return 0, true
		case !v.b:
			return -1, true
		default:
			return 1, true
		}
	}
	if v.Kind == KindDate && other.Kind == KindDate {
		switch {
		case v.t.Before(other.t):
			return -1, true
		case v.t.After(other.t):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// HashKey returns a canonical string usable as a GROUP BY / DISTINCT map key.
func (v Value) HashKey() string {
	switch v.Kind {
	case KindObject:
		keys := append([]string(nil), v.order...)
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.obj[k].HashKey()
		}
		return "{" + strings.Join(parts, ",") + "}"
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.HashKey()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return v.TypeName() + ":" + v.AsString()
	}
}
