package runtime

import (
	"io"

	"github.com/qiulin/qwery/internal/value"
)

// ResultSet is qwery's lazy, single-pass row iterator (spec §3): Next
// returns io.EOF once exhausted. Close releases any device held by the
// producing operator and must be safe to call more than once (spec §5:
// "close is idempotent").
type ResultSet interface {
	Next() (value.Row, error)
	Close() error
}

// Executable is an AST node lowered by the compiler that can be evaluated
// against a Scope to produce a row stream or a side effect (spec §3).
type Executable interface {
	Execute(scope *Scope) (ResultSet, error)
}

// emptyResultSet yields no rows.
type emptyResultSet struct{}

func (emptyResultSet) Next() (value.Row, error) { return value.Row{}, io.EOF }
func (emptyResultSet) Close() error             { return nil }

// EmptyResultSet returns a ResultSet that yields no rows and closes
// trivially.
func EmptyResultSet() ResultSet { return emptyResultSet{} }

// sliceResultSet iterates a pre-materialized slice of rows.
type sliceResultSet struct {
	rows []value.Row
	pos  int
}

// NewSliceResultSet wraps an already-materialized row slice as a ResultSet
// (used by operators whose spec semantics require full materialization
// before emission: GROUP BY, ORDER BY, and any operator whose hash-map
// iteration order must not leak into output per spec §5).
func NewSliceResultSet(rows []value.Row) ResultSet {
	return &sliceResultSet{rows: rows}
}

func (r *sliceResultSet) Next() (value.Row, error) {
	if r.pos >= len(r.rows) {
		return value.Row{}, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *sliceResultSet) Close() error {
	r.pos = len(r.rows)
	return nil
}

// effectResultSet yields a single row that was built before it was created
// (or no row when hasRow is false), then the ResultSet is exhausted.
type effectResultSet struct {
	row   value.Row
	hasRow bool
	done  bool
}

func newEffectResultSet(row value.Row, hasRow bool) ResultSet {
	return &effectResultSet{row: row, hasRow: hasRow}
}

func (r *effectResultSet) Next() (value.Row, error) {
	if r.done {
		return value.Row{}, io.EOF
	}
	r.done = true
	if !r.hasRow {
		return value.Row{}, io.EOF
	}
	return r.row, nil
}

func (r *effectResultSet) Close() error {
	r.done = true
	return nil
}

// closeAll closes every non-nil closer, returning the first error
// encountered while still attempting to close the rest (spec §5: every
// suspension point must release its devices).
func closeAll(closers ...func() error) error {
	var first error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
