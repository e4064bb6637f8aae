package gfx

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when no hardware or software adapter
	// supports the requested feature level.
	ErrDeviceUnavailable = errors.New("gfx: no adapter supports the requested feature level")

	// ErrNoInterface is returned when an object does not implement a
	// required interface version.
	ErrNoInterface = errors.New("gfx: interface not supported")

	// ErrDeviceRemoved is returned once the device has been lost.
	ErrDeviceRemoved = errors.New("gfx: device removed")

	// ErrNotSupported is returned for optional operations a backend lacks.
	ErrNotSupported = errors.New("gfx: operation not supported")

	// ErrBackendNotFound is returned by Lookup for unknown backend names.
	ErrBackendNotFound = errors.New("gfx: backend not registered")

	// ErrEventClosed is returned by Event.Wait after Close.
	ErrEventClosed = errors.New("gfx: event closed")
)

// ErrorKind classifies a failure by the phase it happened in.
type ErrorKind int

const (
	// KindInit covers creation of any long-lived object.
	KindInit ErrorKind = iota + 1
	// KindFrame covers per-frame recording, submission and presentation.
	KindFrame
)

func (k ErrorKind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindFrame:
		return "frame"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error records the operation that failed and the phase it belongs to.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failure: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// InitError wraps err as a KindInit failure of op.
func InitError(op string, err error) error {
	return &Error{Op: op, Kind: KindInit, Err: err}
}

// FrameError wraps err as a KindFrame failure of op.
func FrameError(op string, err error) error {
	return &Error{Op: op, Kind: KindFrame, Err: err}
}

// IsKind reports whether err is a gfx Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
