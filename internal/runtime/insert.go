// InsertExec implements INSERT INTO|OVERWRITE (spec §4.7). Grounded on
// razeghi71-dq/engine/engine.go's row-at-a-time AddRow loop, adapted from
// writing into an in-memory *table.Table to streaming rows through an
// iodev.OutputSource opened by the compiler's device registry.
package runtime

import (
	"io"

	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/value"
)

// InsertExec is the compiled form of an ast.Insert. Source produces the rows
// to write; Fields names the declared column order the target expects (spec
// §4.7: rows are reordered/projected to this order before being written,
// missing columns become NULL, extra columns are dropped).
type InsertExec struct {
	Fields     []string
	Source     Executable
	OpenTarget func(scope *Scope) (iodev.OutputSource, error)
}

func (x *InsertExec) Execute(scope *Scope) (ResultSet, error) {
	src, err := x.Source.Execute(scope)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := x.OpenTarget(scope)
	if err != nil {
		return nil, qerr.NewRuntime(qerr.PhaseOpen, err)
	}

	count := 0
	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			dst.Close()
			return nil, qerr.NewRuntime(qerr.PhaseRead, err)
		}
		out := row
		if len(x.Fields) > 0 {
			out = row.Project(x.Fields)
		}
		if err := dst.Write(out); err != nil {
			dst.Close()
			return nil, qerr.NewRuntime(qerr.PhaseWrite, err)
		}
		count++
	}
	if err := dst.Close(); err != nil {
		return nil, qerr.NewRuntime(qerr.PhaseClose, err)
	}
	row := value.NewRow([]string{"rows_written"}, []value.Value{value.Int64(int64(count))})
	return newEffectResultSet(row, true), nil
}
