// Package hints implements qwery's Hints value type (spec §3, §4.3): the
// format/IO configuration bundle attached to a DataResource. Grounded on
// razeghi71-dq/loader/loader.go's per-format option handling, generalized
// into an explicit value aggregate per DESIGN NOTES §9 ("Hints is a plain
// value aggregate; merging two Hints is field-wise 'right wins when set'").
package hints

// Hints bundles format/IO options. Every field is a pointer so "unset" is
// distinguishable from the zero value of the underlying type.
type Hints struct {
	Append        *bool
	Delimiter     *string
	Headers       *bool
	Gzip          *bool
	QuotedNumbers *bool
	QuotedText    *bool
	IsJSON        *bool
	AvroSchema    *string
	Properties    map[string]string
	JSONPath      *string
	LineEnding    *string // "LF" (default) or "CRLF", delimited-writer record terminator
}

func boolPtr(b bool) *bool      { return &b }
func strPtr(s string) *string   { return &s }

// Empty reports whether every field is unset (spec §8 invariant 3).
func (h Hints) Empty() bool {
	return h.Append == nil && h.Delimiter == nil && h.Headers == nil &&
		h.Gzip == nil && h.QuotedNumbers == nil && h.QuotedText == nil &&
		h.IsJSON == nil && h.AvroSchema == nil && len(h.Properties) == 0 &&
		h.JSONPath == nil && h.LineEnding == nil
}

// Merge returns a new Hints where every field set on other overrides the
// corresponding field in h; fields unset on other are carried over from h.
func (h Hints) Merge(other Hints) Hints {
	out := h
	if other.Append != nil {
		out.Append = other.Append
	}
	if other.Delimiter != nil {
		out.Delimiter = other.Delimiter
	}
	if other.Headers != nil {
		out.Headers = other.Headers
	}
	if other.Gzip != nil {
		out.Gzip = other.Gzip
	}
	if other.QuotedNumbers != nil {
		out.QuotedNumbers = other.QuotedNumbers
	}
	if other.QuotedText != nil {
		out.QuotedText = other.QuotedText
	}
	if other.IsJSON != nil {
		out.IsJSON = other.IsJSON
	}
	if other.AvroSchema != nil {
		out.AvroSchema = other.AvroSchema
	}
	if len(other.Properties) > 0 {
		merged := make(map[string]string, len(h.Properties)+len(other.Properties))
		for k, v := range h.Properties {
			merged[k] = v
		}
		for k, v := range other.Properties {
			merged[k] = v
		}
		out.Properties = merged
	}
	if other.JSONPath != nil {
		out.JSONPath = other.JSONPath
	}
	if other.LineEnding != nil {
		out.LineEnding = other.LineEnding
	}
	return out
}

// Format is a WITH FORMAT preset name.
type Format string

const (
	CSV  Format = "CSV"
	TSV  Format = "TSV"
	PSV  Format = "PSV"
	JSON Format = "JSON"
)

// UsingFormat applies a named preset (spec §4.3). It is idempotent (spec §8
// invariant 2): applying it twice in a row yields the same Hints as once,
// because each preset sets every field it owns unconditionally.
func (h Hints) UsingFormat(f Format) Hints {
	preset := Hints{}
	switch f {
	case CSV:
		preset.Delimiter = strPtr(",")
		preset.Headers = boolPtr(true)
		preset.QuotedText = boolPtr(true)
		preset.QuotedNumbers = boolPtr(false)
	case TSV:
		preset.Delimiter = strPtr("\t")
		preset.Headers = boolPtr(true)
		preset.QuotedText = boolPtr(true)
		preset.QuotedNumbers = boolPtr(false)
	case PSV:
		preset.Delimiter = strPtr("|")
		preset.Headers = boolPtr(true)
		preset.QuotedText = boolPtr(true)
		preset.QuotedNumbers = boolPtr(false)
	case JSON:
		preset.IsJSON = boolPtr(true)
	}
	return h.Merge(preset)
}

// BoolOr returns the pointed-to value, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// StringOr returns the pointed-to value, or def when p is nil.
func StringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// SetAppend returns a copy of h with Append set.
func (h Hints) SetAppend(v bool) Hints { h.Append = boolPtr(v); return h }

// SetGzip returns a copy of h with Gzip set.
func (h Hints) SetGzip(v bool) Hints { h.Gzip = boolPtr(v); return h }

// SetDelimiter returns a copy of h with Delimiter set.
func (h Hints) SetDelimiter(v string) Hints { h.Delimiter = strPtr(v); return h }

// SetHeaders returns a copy of h with Headers set.
func (h Hints) SetHeaders(v bool) Hints { h.Headers = boolPtr(v); return h }

// SetAvroSchema returns a copy of h with AvroSchema set.
func (h Hints) SetAvroSchema(v string) Hints { h.AvroSchema = strPtr(v); return h }

// SetQuoted returns a copy of h with the named quoted-flag ("NUMBERS" or
// "TEXT") set to true.
func (h Hints) SetQuoted(which string) Hints {
	switch which {
	case "NUMBERS":
		h.QuotedNumbers = boolPtr(true)
	case "TEXT":
		h.QuotedText = boolPtr(true)
	}
	return h
}

// SetLineEnding returns a copy of h with LineEnding set ("LF" or "CRLF").
func (h Hints) SetLineEnding(v string) Hints { h.LineEnding = strPtr(v); return h }

// SetJSONPath returns a copy of h with JSONPath set.
func (h Hints) SetJSONPath(v string) Hints { h.JSONPath = strPtr(v); return h }

// ResolveLineEnding returns the effective record terminator: the hint if
// set, else def (normally internal/config.Defaults.LineEnding).
func (h Hints) ResolveLineEnding(def string) string { return StringOr(h.LineEnding, def) }

// SetProperties returns a copy of h with Properties merged in.
func (h Hints) SetProperties(props map[string]string) Hints {
	merged := make(map[string]string, len(h.Properties)+len(props))
	for k, v := range h.Properties {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	h.Properties = merged
	return h
}
