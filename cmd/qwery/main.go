// Command qwery is a single-invocation SQL shell: it parses and executes
// every statement in its argument, one after another against a shared
// Scope, and pretty-prints each statement's result rows. Grounded on
// razeghi71-dq/cmd/dq/main.go's shape (load query from argv, execute,
// print a table), extended to qwery's multi-statement-per-invocation
// semantics (a script may DECLARE/SET/CONNECT before its final SELECT) and
// to tablewriter rendering in place of the teacher's hand-rolled padRight
// column formatter.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	_ "github.com/qiulin/qwery/internal/compiler"
	"github.com/qiulin/qwery/internal/parser"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/runtime"
	"github.com/qiulin/qwery/internal/token"
	"github.com/qiulin/qwery/internal/value"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: qwery '<statement>; <statement>; ...'")
		fmt.Fprintln(os.Stderr, `example: qwery "SELECT name, age FROM 'users.csv' WHERE age > 20"`)
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run parses and executes every statement in src against one shared Scope,
// stopping at the first error.
func run(src string, w io.Writer) error {
	stream, err := token.New(src)
	if err != nil {
		return err
	}
	p := parser.New()
	scope := runtime.NewRootScope()

	for !stream.AtEOF() {
		stmt, err := p.ParseStatement(stream)
		if err != nil {
			return err
		}
		stream.NextIf(";")

		exec, err := runtime.CompileFn(stmt)
		if err != nil {
			return err
		}
		rs, err := exec.Execute(scope)
		if err != nil {
			return err
		}
		if err := printResult(rs, w); err != nil {
			rs.Close()
			return err
		}
		if err := rs.Close(); err != nil {
			return qerr.NewRuntime(qerr.PhaseClose, err)
		}
	}
	return nil
}

// printResult drains rs and renders it as a table, using the first row's
// column names as the header; a statement with no rows prints nothing.
func printResult(rs runtime.ResultSet, w io.Writer) error {
	var header []string
	var body [][]string
	for {
		row, err := rs.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if header == nil {
			header = row.Names
		}
		body = append(body, renderRow(row))
	}
	if header == nil {
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	for _, row := range body {
		table.Append(row)
	}
	table.Render()
	return nil
}

func renderRow(row value.Row) []string {
	cells := make([]string, len(row.Values))
	for i, v := range row.Values {
		if v.IsNull() {
			cells[i] = "NULL"
			continue
		}
		cells[i] = v.AsString()
	}
	return cells
}
