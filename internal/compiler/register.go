package compiler

import (
	"github.com/qiulin/qwery/internal/source/avro"
	"github.com/qiulin/qwery/internal/source/delim"
	"github.com/qiulin/qwery/internal/source/jdbc"
	"github.com/qiulin/qwery/internal/source/jsontext"
	"github.com/qiulin/qwery/internal/source/parquet"
	"github.com/qiulin/qwery/internal/source/s3obj"
)

// init registers the built-in device factories in the fixed order spec
// §4.5/SPEC_FULL §4.5 names: most format-specific first, delimited text
// last as the catch-all. Registration is process-wide and, per spec §9,
// immutable once the process starts handling statements.
func init() {
	Register(jsontext.Factory{})
	Register(avro.Factory{})
	Register(parquet.Factory{})
	Register(jdbc.Factory{})
	Register(s3obj.Factory{})
	Register(delim.Factory{})
}
