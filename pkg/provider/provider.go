// Package provider defines the contract every measurement provider
// implements and the orchestrator that gates measurements on consent.
//
// A concrete provider only supplies a [Backend]: its legal terms, its
// server list and a way to run one measurement. Wrapping it in an
// [Orchestrator] yields a [Provider] whose Measure always checks consent
// first, resolves the requested server, bounds the backend call with a
// timeout and maps every failure onto an nverr kind.
package provider

import (
	"context"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"

	"github.com/bilal/netvelocimeter/pkg/binary"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// Provider is what clients use to accept terms and run measurements.
type Provider interface {
	// Name is the provider's registry name.
	Name() string
	// Version is the backend's version; 0 for providers without a binary.
	Version() *version.Version
	// LegalTerms returns the declared terms in the given categories. No
	// categories, or terms.CategoryAll, returns all of them.
	LegalTerms(categories ...terms.Category) terms.Collection
	// HasAcceptedTerms reports whether every term in c was accepted. A nil
	// c means all declared terms.
	HasAcceptedTerms(c terms.Collection) bool
	// AcceptTerms records acceptance of c.
	AcceptTerms(ctx context.Context, c terms.Collection) error
	// Servers lists the servers the backend can measure against.
	Servers(ctx context.Context) ([]Server, error)
	// Measure runs one measurement.
	Measure(ctx context.Context, opts MeasureOptions) (*MeasurementResult, error)
}

// Call carries per-invocation state from the orchestrator to a backend.
type Call struct {
	// TermsAccepted is true when every declared term was accepted.
	TermsAccepted bool
	// Server is the server to measure against; nil lets the backend choose.
	Server *Server
}

// Backend is the capability set a concrete provider implements.
type Backend interface {
	Name() string
	Version() *version.Version
	// Terms returns the declared terms in declaration order. It must not
	// perform I/O.
	Terms() terms.Collection
	Servers(ctx context.Context, call Call) ([]Server, error)
	// Measure is only called once consent was checked. Missing required
	// fields must fail with nverr.ErrResultUnparsable.
	Measure(ctx context.Context, call Call) (*MeasurementResult, error)
}

// TermsTracker is the part of terms.Tracker a provider needs.
type TermsTracker interface {
	IsRecorded(ts ...terms.LegalTerms) bool
	Record(ctx context.Context, ts ...terms.LegalTerms) error
}

// Options are handed to every provider constructor.
type Options struct {
	// BinaryDir is where the provider keeps its external executable.
	BinaryDir string
	// Tracker records acceptances. Required.
	Tracker TermsTracker
	Logger  zerolog.Logger

	// Runner executes the provider binary; nil runs real processes.
	Runner           binary.Runner
	DownloadTimeout  time.Duration
	DownloadAttempts int
	VersionTimeout   time.Duration
	MeasureTimeout   time.Duration
	TrustOnFirstUse  bool
	// Checksums pins the executable's SHA-256 per platform, keyed
	// "<goos>_<goarch>".
	Checksums map[string]string
}

// Constructor builds a provider. It may block while a binary is installed.
type Constructor func(ctx context.Context, opts Options) (Provider, error)

// ZeroVersion is reported by providers without an external binary.
func ZeroVersion() *version.Version {
	return version.Must(version.NewVersion("0"))
}
