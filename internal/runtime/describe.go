// DescribeExec implements DESCRIBE (spec §4.8): pulls one row from the
// source and emits one (Column, Type, Sample) row per column.
package runtime

import (
	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/value"
)

type DescribeExec struct {
	Limit      *int
	OpenSource func(scope *Scope) (iodev.InputSource, error)
}

var describeColumns = []string{"Column", "Type", "Sample"}

func (x *DescribeExec) Execute(scope *Scope) (ResultSet, error) {
	src, err := x.OpenSource(scope)
	if err != nil {
		return nil, qerr.NewRuntime(qerr.PhaseOpen, err)
	}
	defer src.Close()

	row, err := src.Read()
	if err != nil {
		if err == iodev.ErrEOF {
			return NewSliceResultSet(nil), nil
		}
		return nil, qerr.NewRuntime(qerr.PhaseRead, err)
	}

	n := len(row.Names)
	if x.Limit != nil && *x.Limit < n {
		n = *x.Limit
	}
	out := make([]value.Row, 0, n)
	for i := 0; i < n; i++ {
		v := row.Values[i]
		out = append(out, value.NewRow(describeColumns, []value.Value{
			value.String(row.Names[i]),
			value.String(v.TypeName()),
			value.String(v.AsString()),
		}))
	}
	return NewSliceResultSet(out), nil
}
