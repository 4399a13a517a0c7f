package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxDownloadSize caps an archive download.
const maxDownloadSize = 512 << 20

// ErrNotPinned is returned by sources that know no checksum for a version.
var ErrNotPinned = errors.New("no checksum pinned")

// Source supplies a provider binary and the checksum it must match.
type Source interface {
	// Fetch returns the executable's bytes for version.
	Fetch(ctx context.Context, version string) ([]byte, error)
	// ExpectedChecksum returns the lowercase hex SHA-256 of the executable
	// for version, or ErrNotPinned.
	ExpectedChecksum(version string) (string, error)
}

// HTTPSource downloads an archive over HTTP(S) and extracts one member.
type HTTPSource struct {
	// URL returns the download location for a version.
	URL func(version string) (string, error)
	// Member is the executable's path inside the archive. Ignored for raw
	// downloads.
	Member string
	// Checksums maps version to the executable's hex SHA-256.
	Checksums map[string]string

	Client    *http.Client
	Attempts  int
	BaseDelay time.Duration
	UserAgent string
	Logger    *zerolog.Logger
}

func (s *HTTPSource) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// ExpectedChecksum implements Source.
func (s *HTTPSource) ExpectedChecksum(version string) (string, error) {
	if sum, ok := s.Checksums[version]; ok && sum != "" {
		return strings.ToLower(sum), nil
	}
	return "", ErrNotPinned
}

// Fetch implements Source. Transport errors and 5xx responses are retried
// with exponential backoff plus jitter; 4xx responses are not.
func (s *HTTPSource) Fetch(ctx context.Context, version string) ([]byte, error) {
	if s.URL == nil {
		return nil, errors.New("http source has no url")
	}
	url, err := s.URL(version)
	if err != nil {
		return nil, err
	}

	archive, err := s.download(ctx, url)
	if err != nil {
		return nil, err
	}
	data, err := Extract(FormatFromURL(url), archive, s.Member)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	return data, nil
}

func (s *HTTPSource) download(ctx context.Context, url string) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	maxAttempts := s.Attempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := s.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	var attempt int
	for {
		attempt++
		data, retry, err := s.get(ctx, client, url)
		if err == nil {
			s.logger().Info().Str("url", url).Int("bytes", len(data)).Msg("binary downloaded")
			return data, nil
		}

		if !retry || attempt >= maxAttempts {
			return nil, fmt.Errorf("download %s after %d attempt(s): %w", url, attempt, err)
		}
		s.logger().Warn().Err(err).Int("attempt", attempt).Str("url", url).Msg("binary download failed, will retry")

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
		jitter := time.Duration(rand.Int63n(int64(baseDelay)))

		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, fmt.Errorf("download %s: %w", url, ctx.Err())
		}
	}
}

// get performs one request. retry reports whether a failure is transient.
func (s *HTTPSource) get(ctx context.Context, client *http.Client, url string) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode >= 500, fmt.Errorf("bad status: %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	if len(data) > maxDownloadSize {
		return nil, false, fmt.Errorf("download exceeds %d bytes", maxDownloadSize)
	}
	return data, false, nil
}
