// Package iodev defines qwery's device/source contract (spec §6, §9):
// InputDevice/OutputDevice (byte-record I/O) and InputSource/OutputSource
// (row-level I/O built on top of a device), plus the DeviceFactory
// abstraction the compiler's device registry dispatches through. Kept
// decoupled from internal/runtime's Scope type (ConnLookup stands in for
// "open(scope)" from spec §6) so device implementations never import the
// runtime package, avoiding an import cycle between device resolution and
// execution.
package iodev

import (
	"io"

	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/value"
)

// Record is one byte-level unit exchanged with an InputDevice/OutputDevice
// (spec §3).
type Record struct {
	Bytes  []byte
	Offset int64
	Size   int
}

// Stats reports device-level I/O counters.
type Stats struct {
	Records int64
	Bytes   int64
}

// InputDevice is byte-record read access to an underlying resource (file,
// network stream, object store key). Read returns io.EOF once exhausted.
type InputDevice interface {
	Open() error
	Read() (*Record, error)
	Close() error
	Stats() Stats
}

// OutputDevice is byte-record write access to an underlying resource.
type OutputDevice interface {
	Open() error
	Write(rec *Record) error
	Close() error
	Stats() Stats
}

// InputSource maps device records to rows, applying format rules (spec
// §4.9). Read returns io.EOF once exhausted; Close releases the underlying
// device exactly once, idempotently.
type InputSource interface {
	Read() (value.Row, error)
	Close() error
}

// OutputSource maps rows to device records, applying format rules.
type OutputSource interface {
	Write(row value.Row) error
	Close() error
}

// ErrEOF is an alias of io.EOF for callers that only import iodev.
var ErrEOF = io.EOF

// ConnLookup resolves a CONNECT ... AS name handle to a connection string
// and its hints, standing in for "open(scope)" without iodev depending on
// runtime.Scope.
type ConnLookup func(name string) (dsn string, h hints.Hints, ok bool)

// Factory is one entry in the device registry (spec §4.5, §9): an ordered
// list of factories is tried in order, first match wins. A Factory reports
// ok=false (with a nil error) when the path/hints combination isn't one it
// handles, letting the registry try the next factory; registration is
// process-wide and the registry is immutable after construction.
type Factory interface {
	Name() string
	OpenInput(path string, h hints.Hints, conns ConnLookup) (InputSource, bool, error)
	OpenOutput(path string, h hints.Hints, conns ConnLookup) (OutputSource, bool, error)
}
