// Package velocimeter is the library entry point. It composes a provider
// registry, an acceptance ledger and a provider instance.
//
//	v, err := velocimeter.New(ctx, velocimeter.Options{Provider: "ookla"})
//	if err != nil { ... }
//	if !v.HasAcceptedTerms(nil) {
//		// show v.LegalTerms() to the user, then
//		err = v.AcceptTerms(ctx, v.LegalTerms())
//	}
//	res, err := v.Measure(ctx, provider.MeasureOptions{})
package velocimeter

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bilal/netvelocimeter/internal/xdg"
	"github.com/bilal/netvelocimeter/pkg/ledger"
	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/registry"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// DefaultProvider is used when Options.Provider is empty.
const DefaultProvider = "ookla"

// LedgerDir is the acceptance ledger's directory below the config root.
const LedgerDir = "legal"

// Options configures New. Zero values pick defaults.
type Options struct {
	Provider string
	// BinRoot holds one binary directory per provider.
	BinRoot string
	// ConfigRoot holds the acceptance ledger unless Store is set.
	ConfigRoot string
	Registry   *registry.Registry
	Store      ledger.Store
	Logger     *zerolog.Logger

	// ProviderOptions carries the provider settings. Its BinaryDir, Tracker and
	// Logger are filled in by New.
	ProviderOptions provider.Options
}

// Velocimeter is a provider bound to its acceptance tracker.
type Velocimeter struct {
	provider.Provider

	tracker   *terms.Tracker
	binaryDir string
}

// New builds the named provider; an alias uses the binary directory of the
// provider it names. It may block while a binary is installed.
func New(ctx context.Context, opts Options) (*Velocimeter, error) {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	name := opts.Provider
	if name == "" {
		name = DefaultProvider
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.NewDefault()
	}
	entry, err := reg.Lookup(name)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		configRoot := opts.ConfigRoot
		if configRoot == "" {
			if configRoot, err = xdg.ConfigRoot(); err != nil {
				return nil, nverr.New("velocimeter.new", nverr.ErrInvalidConfiguration, err)
			}
		}
		if configRoot, err = filepath.Abs(configRoot); err != nil {
			return nil, nverr.New("velocimeter.new", nverr.ErrInvalidConfiguration, err)
		}
		fs, err := ledger.NewFileStore(filepath.Join(configRoot, LedgerDir), logger)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	tracker, err := terms.NewTracker(ctx, store, logger)
	if err != nil {
		return nil, err
	}

	binRoot := opts.BinRoot
	if binRoot == "" {
		if binRoot, err = xdg.BinRoot(); err != nil {
			return nil, nverr.New("velocimeter.new", nverr.ErrInvalidConfiguration, err)
		}
	}

	po := opts.ProviderOptions
	// aliases share their target's binary
	po.BinaryDir = filepath.Join(binRoot, entry.Provider())
	po.Tracker = tracker
	po.Logger = logger.With().Str("provider", name).Logger()

	p, err := entry.New(ctx, po)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("provider", name).Str("version", p.Version().String()).Str("bin", po.BinaryDir).Msg("provider ready")

	return &Velocimeter{Provider: p, tracker: tracker, binaryDir: po.BinaryDir}, nil
}

// Tracker returns the acceptance tracker shared with the provider.
func (v *Velocimeter) Tracker() *terms.Tracker { return v.tracker }

// BinaryDir returns the provider's binary directory.
func (v *Velocimeter) BinaryDir() string { return v.binaryDir }
