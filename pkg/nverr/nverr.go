// Package nverr defines the error kinds shared by every netvelocimeter package.
//
// Each kind is a sentinel. Operations return an [*Error] that unwraps to both
// its kind and its underlying cause, so callers can test either:
//
//	if errors.Is(err, nverr.ErrConsentRequired) { ... }
//	if errors.Is(err, context.DeadlineExceeded) { ... }
package nverr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrInvalidConfiguration is returned for invalid arguments or settings,
	// e.g. both a server id and a server host passed to a measurement.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrConsentRequired is returned when a measurement is attempted before
	// all required legal terms were accepted.
	ErrConsentRequired = errors.New("legal terms must be accepted")

	// ErrBinaryAcquisitionFailed covers download, checksum and permission
	// failures while installing a provider binary.
	ErrBinaryAcquisitionFailed = errors.New("binary acquisition failed")

	// ErrBinaryVersionUnreadable is returned when a provider binary does not
	// report a parsable version.
	ErrBinaryVersionUnreadable = errors.New("binary version unreadable")

	// ErrServerNotFound is returned when a requested server id or host is
	// not offered by the provider.
	ErrServerNotFound = errors.New("server not found")

	// ErrBackendProcessFailed is returned when the backend exits non-zero or
	// exceeds its timeout.
	ErrBackendProcessFailed = errors.New("backend process failed")

	// ErrResultUnparsable is returned when required result fields are
	// missing or malformed.
	ErrResultUnparsable = errors.New("result unparsable")

	// ErrLedgerIOFailed is returned when the acceptance ledger cannot be
	// read or written.
	ErrLedgerIOFailed = errors.New("acceptance ledger io failed")

	// ErrProviderNotFound is returned by registry lookups of unknown names.
	ErrProviderNotFound = errors.New("provider not found")
)

var kinds = []error{
	ErrInvalidConfiguration,
	ErrConsentRequired,
	ErrBinaryAcquisitionFailed,
	ErrBinaryVersionUnreadable,
	ErrServerNotFound,
	ErrBackendProcessFailed,
	ErrResultUnparsable,
	ErrLedgerIOFailed,
	ErrProviderNotFound,
}

// Error records a failed operation together with its kind.
// Use [errors.Is] with a kind sentinel, or [errors.As] to read Op.
type Error struct {
	Op   string // operation, e.g. "measure", "binary.ensure"
	Kind error  // one of the kind sentinels
	Err  error  // underlying cause, may be nil
}

// Error returns "op: kind: cause".
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New wraps err with op and kind.
func New(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf wraps a formatted cause with op and kind.
func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the first kind sentinel found in err's chain, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
