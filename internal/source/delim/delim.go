// Package delim implements qwery's delimited-text Input/OutputSource
// (spec §4.9: CSV/TSV/PSV). Grounded on razeghi71-dq/loader/loader.go's
// loadCSV (encoding/csv, TrimLeadingSpace, type-sniffing per cell), turned
// from a whole-file-materializing loader into a row-at-a-time InputSource,
// and on razeghi71-dq/table/table.go's Value constructors for the type
// inference rules. This is the default/catch-all factory: registered last
// so every other factory gets first refusal.
package delim

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/qiulin/qwery/internal/config"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/source/fsutil"
	"github.com/qiulin/qwery/internal/value"
)

// Factory matches any local path not claimed by a more specific format
// factory (spec §4.9's delimited-text source is qwery's fallback format).
type Factory struct{}

func (Factory) Name() string { return "delim" }

func delimiterFor(h hints.Hints) rune {
	d := hints.StringOr(h.Delimiter, ",")
	if d == "" {
		return ','
	}
	r := []rune(d)
	return r[0]
}

func (Factory) OpenInput(path string, h hints.Hints, _ iodev.ConnLookup) (iodev.InputSource, bool, error) {
	rc, err := fsutil.OpenReader(path, h)
	if err != nil {
		return nil, false, err
	}
	r := csv.NewReader(rc)
	r.Comma = delimiterFor(h)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	src := &InputSource{r: r, rc: rc, headers: hints.BoolOr(h.Headers, true)}
	if err := src.readHeader(); err != nil {
		rc.Close()
		return nil, false, err
	}
	return src, true, nil
}

func (Factory) OpenOutput(path string, h hints.Hints, _ iodev.ConnLookup) (iodev.OutputSource, bool, error) {
	writeHeader := !(hints.BoolOr(h.Append, false) && fsutil.Exists(path))
	wc, err := fsutil.OpenWriter(path, h)
	if err != nil {
		return nil, false, err
	}
	lineEnding := "\n"
	if h.ResolveLineEnding(defaultLineEnding()) == "CRLF" {
		lineEnding = "\r\n"
	}
	return &OutputSource{
		wc:           wc,
		closer:       wc,
		delim:        delimiterFor(h),
		lineEnding:   lineEnding,
		quoteText:    hints.BoolOr(h.QuotedText, true),
		quoteNumbers: hints.BoolOr(h.QuotedNumbers, false),
		writeHeader:  writeHeader,
	}, true, nil
}

// defaultLineEnding falls back to internal/config's engine-wide default
// when a DataResource carries no explicit `lineEnding` hint (SPEC_FULL
// §4.9's line-ending configuration supplement).
func defaultLineEnding() string {
	if defs, err := config.Load(); err == nil && defs.LineEnding != "" {
		return defs.LineEnding
	}
	return "LF"
}

// InputSource reads rows one line at a time; the header (real or
// synthetic col0..colN) is consumed during OpenInput so every Read() call
// returns a data row.
type InputSource struct {
	r          *csv.Reader
	rc         io.Closer
	headers    bool
	names      []string
	pending    []string
	hasPending bool
}

func (s *InputSource) readHeader() error {
	rec, err := s.r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if s.headers {
		s.names = make([]string, len(rec))
		for i, h := range rec {
			s.names[i] = strings.TrimSpace(h)
		}
		return nil
	}
	s.names = syntheticNames(len(rec))
	s.pending = rec
	s.hasPending = true
	return nil
}

func syntheticNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "col" + strconv.Itoa(i)
	}
	return names
}

func (s *InputSource) Read() (value.Row, error) {
	var rec []string
	if s.hasPending {
		rec = s.pending
		s.hasPending = false
	} else {
		r, err := s.r.Read()
		if err != nil {
			return value.Row{}, err
		}
		rec = r
	}
	names := s.names
	if len(rec) > len(names) {
		names = append(append([]string{}, names...), syntheticNames(len(rec))[len(names):]...)
	}
	vals := make([]value.Value, len(names))
	for i := range names {
		if i < len(rec) {
			vals[i] = parseValue(strings.TrimSpace(rec[i]))
		} else {
			vals[i] = value.Null()
		}
	}
	return value.NewRow(names, vals), nil
}

func (s *InputSource) Close() error { return s.rc.Close() }

func parseValue(s string) value.Value {
	if s == "" || strings.EqualFold(s, "null") {
		return value.Null()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int64(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Float64(v)
	}
	switch strings.ToLower(s) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	return value.String(s)
}

// OutputSource writes rows as RFC-4180-style delimited text, emitting a
// header row once. Lines are assembled manually rather than through
// encoding/csv.Writer: csv.Writer decides quoting on its own heuristics,
// which conflicts with hints.QuotedText/QuotedNumbers forcing or
// suppressing quotes independent of whether the field needs them.
type OutputSource struct {
	wc           io.Writer
	closer       io.Closer
	delim        rune
	lineEnding   string
	quoteText    bool
	quoteNumbers bool
	writeHeader  bool
}

func (s *OutputSource) Write(row value.Row) error {
	if s.writeHeader {
		fields := make([]string, len(row.Names))
		for i, n := range row.Names {
			fields[i] = s.quoteIfNeeded(n, false)
		}
		if err := s.writeLine(fields); err != nil {
			return err
		}
		s.writeHeader = false
	}
	fields := make([]string, len(row.Values))
	for i, v := range row.Values {
		isNumeric := v.Kind == value.KindInt64 || v.Kind == value.KindFloat64
		fields[i] = s.quoteIfNeeded(v.AsString(), isNumeric)
	}
	return s.writeLine(fields)
}

func (s *OutputSource) writeLine(fields []string) error {
	line := strings.Join(fields, string(s.delim)) + s.lineEnding
	_, err := io.WriteString(s.wc, line)
	return err
}

// quoteIfNeeded applies spec §4.9's quoting hints: quotedText forces quotes
// around non-numeric fields, quotedNumbers forces quotes around numeric
// fields; either way a field containing the delimiter, a quote, or a
// newline must be quoted regardless of hints to stay RFC-4180-valid.
func (s *OutputSource) quoteIfNeeded(text string, isNumeric bool) string {
	forced := s.quoteText
	if isNumeric {
		forced = s.quoteNumbers
	}
	if forced || strings.ContainsRune(text, s.delim) || strings.ContainsAny(text, "\"\r\n") {
		return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
	}
	return text
}

func (s *OutputSource) Close() error {
	return s.closer.Close()
}
