// Package binary acquires, verifies and inspects the external executables
// that some providers delegate measurements to.
//
// A [Resolver] makes sure a verified copy of a binary exists in its directory
// before anything runs it:
//
//  1. an existing file is checked against the expected SHA-256 and discarded
//     on mismatch;
//  2. a missing file is fetched from its [Source], verified, made executable
//     and renamed into place, so the directory never holds a half-written or
//     unverified binary;
//  3. the binary is asked for its version, which is parsed into a
//     comparable [version.Version].
package binary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

const (
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultVersionTimeout  = 15 * time.Second

	checksumExt = ".sha256"
)

// Spec declares a provider's binary.
type Spec struct {
	// Name is the executable's file name inside the binary directory.
	Name string
	// Version is the release to fetch when the binary is missing.
	Version string
	Source  Source
	// VersionArgs make the binary print its version, e.g. ["--version"].
	VersionArgs []string
	// ParseVersion turns the version command's stdout into a version.
	ParseVersion func(stdout string) (*version.Version, error)
}

// Binary is a verified, installed executable.
type Binary struct {
	Path     string
	Version  *version.Version
	Checksum string
}

// ChecksumError records a digest mismatch.
type ChecksumError struct {
	Want string
	Got  string
}

// Error returns a human-readable description of the mismatch.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: want %s, got %s", e.Want, e.Got)
}

// ResolverOptions configures a Resolver. Zero values pick defaults.
type ResolverOptions struct {
	Runner          Runner
	DownloadTimeout time.Duration
	VersionTimeout  time.Duration
	// TrustOnFirstUse allows installing a binary whose source pins no
	// checksum. The digest of that first download is written next to the
	// binary and every later probe is verified against it.
	TrustOnFirstUse bool
	Logger          zerolog.Logger
}

// Resolver installs binaries into one directory.
type Resolver struct {
	dir             string
	runner          Runner
	downloadTimeout time.Duration
	versionTimeout  time.Duration
	trustOnFirstUse bool
	log             zerolog.Logger

	group singleflight.Group
}

// NewResolver returns a Resolver for dir.
func NewResolver(dir string, opts ResolverOptions) *Resolver {
	r := &Resolver{
		dir:             dir,
		runner:          opts.Runner,
		downloadTimeout: opts.DownloadTimeout,
		versionTimeout:  opts.VersionTimeout,
		trustOnFirstUse: opts.TrustOnFirstUse,
		log:             opts.Logger,
	}
	if r.runner == nil {
		r.runner = &ExecRunner{}
	}
	if r.downloadTimeout <= 0 {
		r.downloadTimeout = DefaultDownloadTimeout
	}
	if r.versionTimeout <= 0 {
		r.versionTimeout = DefaultVersionTimeout
	}
	return r
}

// Dir returns the binary directory.
func (r *Resolver) Dir() string { return r.dir }

// Ensure installs spec's binary if needed and returns it with its version.
// Concurrent calls for the same name share one resolution.
func (r *Resolver) Ensure(ctx context.Context, spec Spec) (*Binary, error) {
	v, err, _ := r.group.Do(spec.Name, func() (interface{}, error) {
		return r.ensure(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Binary), nil
}

func (r *Resolver) ensure(ctx context.Context, spec Spec) (*Binary, error) {
	const op = "binary.ensure"

	if spec.Name == "" || spec.Source == nil || spec.ParseVersion == nil {
		return nil, nverr.Errorf(op, nverr.ErrInvalidConfiguration, "incomplete binary spec %q", spec.Name)
	}
	if strings.ContainsAny(spec.Name, `/\`) {
		return nil, nverr.Errorf(op, nverr.ErrInvalidConfiguration, "binary name %q must be a plain file name", spec.Name)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, nverr.New(op, nverr.ErrBinaryAcquisitionFailed, err)
	}

	path := filepath.Join(r.dir, spec.Name)
	logger := r.log.With().Str("binary", spec.Name).Str("path", path).Logger()

	want, pinned, err := r.expectedChecksum(spec, path)
	if err != nil {
		return nil, nverr.New(op, nverr.ErrBinaryAcquisitionFailed, err)
	}

	sum, ok := r.probe(path, want, &logger)
	if !ok {
		sum, err = r.install(ctx, spec, path, want, pinned, &logger)
		if err != nil {
			return nil, nverr.New(op, nverr.ErrBinaryAcquisitionFailed, err)
		}
	}

	v, err := r.detectVersion(ctx, spec, path)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("version", v.String()).Msg("binary ready")

	return &Binary{Path: path, Version: v, Checksum: sum}, nil
}

// expectedChecksum returns the pinned checksum or, failing that, the one
// recorded on first use. pinned is false for the latter.
func (r *Resolver) expectedChecksum(spec Spec, path string) (sum string, pinned bool, err error) {
	sum, err = spec.Source.ExpectedChecksum(spec.Version)
	if err == nil {
		return sum, true, nil
	}
	if !errors.Is(err, ErrNotPinned) {
		return "", false, err
	}

	recorded, err := os.ReadFile(path + checksumExt)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.ToLower(strings.TrimSpace(string(recorded))), false, nil
}

// probe reports whether path holds a binary matching want. Anything else is
// removed so a fresh install can take its place.
func (r *Resolver) probe(path, want string, logger *zerolog.Logger) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if want == "" {
		logger.Warn().Msg("existing binary has no checksum to verify against, reinstalling")
		r.discard(path)
		return "", false
	}

	got, err := fileChecksum(path)
	if err != nil || got != want {
		logger.Warn().Err(err).Str("want", want).Str("got", got).Msg("existing binary failed verification, reinstalling")
		r.discard(path)
		return "", false
	}
	return got, true
}

func (r *Resolver) install(ctx context.Context, spec Spec, path, want string, pinned bool, logger *zerolog.Logger) (string, error) {
	if want == "" && !r.trustOnFirstUse {
		return "", fmt.Errorf("no checksum pinned for %s %s", spec.Name, spec.Version)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	logger.Info().Str("version", spec.Version).Msg("fetching binary")
	data, err := spec.Source.Fetch(fetchCtx, spec.Version)
	if err != nil {
		if ctxErr := fetchCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("fetch: %w: %w", err, ctxErr)
		}
		return "", fmt.Errorf("fetch: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("fetch: empty binary")
	}

	digest := sha256.Sum256(data)
	got := hex.EncodeToString(digest[:])
	if want != "" && got != want {
		return "", &ChecksumError{Want: want, Got: got}
	}

	if err := writeAtomic(path, data, 0o755); err != nil {
		return "", err
	}

	if want == "" {
		if err := writeAtomic(path+checksumExt, []byte(got+"\n"), 0o644); err != nil {
			r.discard(path)
			return "", fmt.Errorf("record checksum: %w", err)
		}
		logger.Warn().Str("checksum", got).Msg("no checksum pinned, trusting first download")
	} else if !pinned {
		logger.Debug().Msg("binary matches checksum recorded on first use")
	}

	logger.Info().Str("checksum", got).Msg("binary installed")
	return got, nil
}

func (r *Resolver) detectVersion(ctx context.Context, spec Spec, path string) (*version.Version, error) {
	const op = "binary.version"

	versionCtx, cancel := context.WithTimeout(ctx, r.versionTimeout)
	defer cancel()

	out, err := r.runner.Run(versionCtx, path, spec.VersionArgs...)
	if err != nil {
		return nil, nverr.New(op, nverr.ErrBinaryVersionUnreadable, err)
	}
	v, err := spec.ParseVersion(string(out.Stdout))
	if err != nil {
		return nil, nverr.New(op, nverr.ErrBinaryVersionUnreadable, err)
	}
	return v, nil
}

func (r *Resolver) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.log.Warn().Err(err).Str("path", path).Msg("failed to remove binary")
	}
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// VersionPattern returns a ParseVersion func that joins the submatches of
// re with "+" (so a second group becomes build metadata) and parses them.
func VersionPattern(re *regexp.Regexp) func(string) (*version.Version, error) {
	return func(stdout string) (*version.Version, error) {
		m := re.FindStringSubmatch(stdout)
		if len(m) < 2 || m[1] == "" {
			return nil, fmt.Errorf("no version in output %q", firstLine(stdout))
		}
		raw := m[1]
		if len(m) > 2 && m[2] != "" {
			raw += "+" + m[2]
		}
		return version.NewVersion(raw)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
