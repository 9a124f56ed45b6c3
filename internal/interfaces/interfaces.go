// Package interfaces holds the contracts shared across usbsas-core without
// creating import cycles between the supervisor, the pipeline, and the
// individual worker packages.
package interfaces

import "io"

// Backend is the storage contract satisfied by anything a worker can read
// sectors from or write sectors to: a real USB mass-storage device, a
// file-backed mock device (USBSAS_MOCK_IN_DEV / USBSAS_MOCK_OUT_DEV), or an
// in-progress destination filesystem image file.
type Backend interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Size() int64
	Close() error
	Flush() error
}

// Logger is a minimal logging contract so packages that only need to emit
// a couple of lines don't have to import the concrete logging package.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives per-operation metrics callbacks from worker runtimes.
// Implementations must be thread-safe: on the supervisor side a single
// Observer aggregates callbacks coming from whichever worker is currently
// being driven.
type Observer interface {
	ObserveFileCopied(bytes uint64, latencyNs uint64)
	ObserveFileFiltered()
	ObserveFileRejected()
	ObserveFileErrored()
	ObserveBytesWritten(bytes uint64)
	ObserveStatus(kind string, current, total uint64)
}

// Worker is the runtime contract every usbsas worker process implements
// over its two pipes: read one request, dispatch it through the worker's
// own state machine, write exactly one non-Status response (spec §4.1-4.2).
type Worker interface {
	// Name identifies the worker in logs and in the roster the
	// supervisor keeps (e.g. "device_reader", "fs_builder").
	Name() string

	// Serve runs the worker's main loop against the given request/response
	// streams until End is received or a fatal/protocol error occurs.
	Serve(in io.Reader, out io.Writer) error
}
