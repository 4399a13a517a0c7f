// Package ookla implements a provider backed by the Speedtest by Ookla CLI.
//
// The CLI is downloaded into the provider's binary directory on first use.
// It refuses to run until its license and GDPR notice are accepted, so the
// corresponding flags are passed only once every declared term has been
// accepted through the tracker.
package ookla

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"

	"github.com/bilal/netvelocimeter/pkg/binary"
	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// Name is the provider's registry name. Alias is registered as well.
const (
	Name  = "ookla"
	Alias = "speedtest"
)

const (
	eulaText = "You may only use this Speedtest software and information generated " +
		"from it for personal, non-commercial use, through a command line " +
		"interface on a personal computer. Your use of this software is subject " +
		"to the End User License Agreement, Terms of Use and Privacy Policy."
	eulaURL = "https://www.speedtest.net/about/eula"

	privacyText = "Ookla collects certain data through Speedtest that may be considered " +
		"personally identifiable, such as your IP address, unique device " +
		"identifiers or location. Ookla believes it has a legitimate interest " +
		"to share this data with internet providers, hardware manufacturers and " +
		"industry regulators to help them understand and create a better and " +
		"faster internet. For further information including how the data may be " +
		"shared, where the data may be transferred and Ookla's contact details, " +
		"please see our Privacy Policy."
	privacyURL = "https://www.speedtest.net/about/privacy"
)

// versionPattern matches "Speedtest by Ookla 1.2.0.84 (ea6b6773cf) Linux/...".
var versionPattern = regexp.MustCompile(`^\s*[^0-9]+ ([0-9.]+)[^\da-fA-F]+([\da-fA-F]+)`)

// consentHints in stderr mean the CLI refused to run without acceptance.
var consentHints = []string{"license", "gdpr", "accept", "terms"}

// Terms returns the legal terms the CLI requires.
func Terms() terms.Collection {
	return terms.Collection{
		terms.MustNew(terms.CategoryEULA, eulaText, eulaURL),
		terms.MustNew(terms.CategoryPrivacy, privacyText, privacyURL),
	}
}

// BinarySpec describes the CLI for a binary.Resolver.
func BinarySpec(platform string, src binary.Source) binary.Spec {
	return binary.Spec{
		Name:         BinaryName(platform),
		Version:      ReleaseVersion,
		Source:       src,
		VersionArgs:  []string{"--version"},
		ParseVersion: binary.VersionPattern(versionPattern),
	}
}

// NewSource returns the download source for platform. checksum, if not
// empty, pins the executable's SHA-256 for ReleaseVersion.
func NewSource(platform, checksum string, attempts int, logger *zerolog.Logger) *binary.HTTPSource {
	src := &binary.HTTPSource{
		URL: func(v string) (string, error) {
			return DownloadURL(platform, v)
		},
		Member:    BinaryName(platform),
		Attempts:  attempts,
		UserAgent: "netvelocimeter",
		Logger:    logger,
	}
	if checksum != "" {
		src.Checksums = map[string]string{ReleaseVersion: checksum}
	}
	return src
}

// New is the registry constructor. It installs the CLI if necessary.
func New(ctx context.Context, opts provider.Options) (provider.Provider, error) {
	platform := Platform()
	logger := opts.Logger
	src := NewSource(platform, opts.Checksums[platform], opts.DownloadAttempts, &logger)
	return NewWithSource(ctx, opts, BinarySpec(platform, src))
}

// NewWithSource installs spec's binary and wraps it in an orchestrator.
func NewWithSource(ctx context.Context, opts provider.Options, spec binary.Spec) (*provider.Orchestrator, error) {
	if opts.BinaryDir == "" {
		return nil, nverr.Errorf("ookla.new", nverr.ErrInvalidConfiguration, "binary directory is required")
	}
	if opts.Tracker == nil {
		return nil, nverr.Errorf("ookla.new", nverr.ErrInvalidConfiguration, "tracker is required")
	}

	runner := opts.Runner
	if runner == nil {
		timeout := opts.MeasureTimeout
		if timeout <= 0 {
			timeout = provider.DefaultMeasureTimeout
		}
		runner = &binary.ExecRunner{Timeout: timeout}
	}
	resolver := binary.NewResolver(opts.BinaryDir, binary.ResolverOptions{
		Runner:          runner,
		DownloadTimeout: opts.DownloadTimeout,
		VersionTimeout:  opts.VersionTimeout,
		TrustOnFirstUse: opts.TrustOnFirstUse,
		Logger:          opts.Logger,
	})
	bin, err := resolver.Ensure(ctx, spec)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	return provider.NewOrchestrator(NewBackend(bin, runner, logger), opts.Tracker, provider.OrchestratorOptions{
		MeasureTimeout: opts.MeasureTimeout,
		Logger:         &logger,
	})
}

// Backend runs the installed CLI.
type Backend struct {
	bin    *binary.Binary
	runner binary.Runner
	log    zerolog.Logger
}

// NewBackend returns a backend for an installed binary.
func NewBackend(bin *binary.Binary, runner binary.Runner, logger zerolog.Logger) *Backend {
	return &Backend{bin: bin, runner: runner, log: logger.With().Str("path", bin.Path).Logger()}
}

// Name implements provider.Backend.
func (b *Backend) Name() string { return Name }

// Version implements provider.Backend.
func (b *Backend) Version() *version.Version { return b.bin.Version }

// Terms implements provider.Backend.
func (b *Backend) Terms() terms.Collection { return Terms() }

// Servers implements provider.Backend.
func (b *Backend) Servers(ctx context.Context, call provider.Call) ([]provider.Server, error) {
	out, err := b.run(ctx, "ookla.servers", call.TermsAccepted, "--servers")
	if err != nil {
		return nil, err
	}
	return parseServers(out)
}

// Measure implements provider.Backend.
func (b *Backend) Measure(ctx context.Context, call provider.Call) (*provider.MeasurementResult, error) {
	var args []string
	if s := call.Server; s != nil {
		if s.ID != "" {
			args = append(args, "--server-id="+s.ID)
		} else {
			args = append(args, "--host="+s.Host)
		}
	}

	out, err := b.run(ctx, "ookla.measure", call.TermsAccepted, args...)
	if err != nil {
		return nil, err
	}
	return parseResult(out)
}

func (b *Backend) run(ctx context.Context, op string, accepted bool, extra ...string) ([]byte, error) {
	args := []string{"--format=json", "--progress=no"}
	if accepted {
		args = append(args, "--accept-license", "--accept-gdpr")
	}
	args = append(args, extra...)

	b.log.Debug().Strs("args", args).Msg("running speedtest")
	out, err := b.runner.Run(ctx, b.bin.Path, args...)
	if err == nil {
		return out.Stdout, nil
	}

	var exitErr *binary.ExitError
	if errors.As(err, &exitErr) && mentionsConsent(exitErr.Stderr) {
		return nil, nverr.New(op, nverr.ErrConsentRequired, err)
	}
	return nil, nverr.New(op, nverr.ErrBackendProcessFailed, err)
}

func mentionsConsent(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, hint := range consentHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
