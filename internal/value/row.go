package value

import "strings"

// Row is an ordered key-value sequence (spec §3): insertion order is
// preserved and keys are not required to be unique — a later column with the
// same name wins on lookup by name, per spec.
type Row struct {
	Names  []string
	Values []Value
}

// NewRow builds a Row from parallel name/value slices.
func NewRow(names []string, values []Value) Row {
	return Row{Names: names, Values: values}
}

// Append adds a (name, value) pair to the end of the row.
func (r *Row) Append(name string, v Value) {
	r.Names = append(r.Names, name)
	r.Values = append(r.Values, v)
}

// Get returns the value for name, walking from the end so a later column of
// the same name wins, and whether it was found.
func (r Row) Get(name string) (Value, bool) {
	for i := len(r.Names) - 1; i >= 0; i-- {
		if r.Names[i] == name {
			return r.Values[i], true
		}
	}
	return Null(), false
}

// Index returns the last index of name, or -1.
func (r Row) Index(name string) int {
	for i := len(r.Names) - 1; i >= 0; i-- {
		if r.Names[i] == name {
			return i
		}
	}
	return -1
}

// Clone returns a shallow copy (Values are copied by value, which is safe
// since Value's slice/map payloads are treated as immutable once built).
func (r Row) Clone() Row {
	names := make([]string, len(r.Names))
	copy(names, r.Names)
	vals := make([]Value, len(r.Values))
	copy(vals, r.Values)
	return Row{Names: names, Values: vals}
}

// HashKeyRow returns a canonical string usable as a GROUP BY bucket key,
// combining every value's HashKey in column order.
func (r Row) HashKeyRow() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = v.HashKey()
	}
	return strings.Join(parts, "\x1f")
}

// Project returns a new Row containing only the named columns, in the given
// order. Missing columns become Null.
func (r Row) Project(names []string) Row {
	out := Row{Names: make([]string, len(names)), Values: make([]Value, len(names))}
	for i, n := range names {
		v, ok := r.Get(n)
		if !ok {
			v = Null()
		}
		out.Names[i] = n
		out.Values[i] = v
	}
	return out
}
