// Package static implements a deterministic provider that never touches the
// network. Every value it reports is configurable, which makes it the
// provider of choice for tests and demos.
package static

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// Name is the provider's registry name.
const Name = "static"

const (
	DefaultDownloadSpeed   = 100.0
	DefaultUploadSpeed     = 50.0
	DefaultPingLatency     = 25 * time.Millisecond
	DefaultPingJitter      = 20 * time.Millisecond
	DefaultDownloadLatency = 30 * time.Millisecond
	DefaultUploadLatency   = 60 * time.Millisecond
	DefaultVersion         = "1.2.3+c0ffee"
	DefaultPersistURL      = "https://example.com/results/static-test-1234"

	serverCount = 5
)

// DefaultTerms are the terms a default Config declares.
func DefaultTerms() terms.Collection {
	return terms.Collection{
		terms.MustNew(terms.CategoryEULA, "Test EULA", "https://example.com/eula"),
		terms.MustNew(terms.CategoryService, "Test Terms", "https://example.com/terms"),
		terms.MustNew(terms.CategoryPrivacy, "Test Privacy", "https://example.com/privacy"),
	}
}

// Config sets what the backend reports. Use DefaultConfig and override
// fields; the zero Config declares no terms and reports zeros.
type Config struct {
	Terms terms.Collection

	DownloadSpeed   float64
	UploadSpeed     float64
	PingLatency     time.Duration
	PingJitter      time.Duration
	DownloadLatency *time.Duration
	UploadLatency   *time.Duration
	PacketLoss      *float64
	PersistURL      string
	ResultID        string
	Version         string

	// OnMeasure, if set, runs before every measurement. A non-nil error is
	// returned from Measure as is.
	OnMeasure func(ctx context.Context, call provider.Call) error
}

// DefaultConfig returns the fixed values used by the registered provider.
// Packet loss and result id are absent.
func DefaultConfig() Config {
	dl, ul := DefaultDownloadLatency, DefaultUploadLatency
	return Config{
		Terms:           DefaultTerms(),
		DownloadSpeed:   DefaultDownloadSpeed,
		UploadSpeed:     DefaultUploadSpeed,
		PingLatency:     DefaultPingLatency,
		PingJitter:      DefaultPingJitter,
		DownloadLatency: &dl,
		UploadLatency:   &ul,
		PersistURL:      DefaultPersistURL,
		Version:         DefaultVersion,
	}
}

// Backend is the static provider.Backend.
type Backend struct {
	cfg     Config
	version *version.Version
}

// NewBackend validates cfg and returns a backend for it.
func NewBackend(cfg Config) (*Backend, error) {
	v := provider.ZeroVersion()
	if cfg.Version != "" {
		var err error
		if v, err = version.NewVersion(cfg.Version); err != nil {
			return nil, nverr.New("static.new", nverr.ErrInvalidConfiguration, err)
		}
	}
	return &Backend{cfg: cfg, version: v}, nil
}

// New is the registry constructor. The static provider has no binary, so
// opts.BinaryDir is ignored.
func New(ctx context.Context, opts provider.Options) (provider.Provider, error) {
	return NewWithConfig(DefaultConfig(), opts)
}

// NewWithConfig builds a static provider reporting cfg.
func NewWithConfig(cfg Config, opts provider.Options) (*provider.Orchestrator, error) {
	b, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	return provider.NewOrchestrator(b, opts.Tracker, provider.OrchestratorOptions{
		MeasureTimeout: opts.MeasureTimeout,
		Logger:         &logger,
	})
}

// Name implements provider.Backend.
func (b *Backend) Name() string { return Name }

// Version implements provider.Backend.
func (b *Backend) Version() *version.Version { return b.version }

// Terms implements provider.Backend.
func (b *Backend) Terms() terms.Collection { return b.cfg.Terms }

// Servers implements provider.Backend. It lists servers 1 to 5.
func (b *Backend) Servers(ctx context.Context, call provider.Call) ([]provider.Server, error) {
	servers := make([]provider.Server, 0, serverCount)
	for i := 1; i <= serverCount; i++ {
		servers = append(servers, server(i))
	}
	return servers, nil
}

// Measure implements provider.Backend. Without a selected server it reports
// server 1.
func (b *Backend) Measure(ctx context.Context, call provider.Call) (*provider.MeasurementResult, error) {
	if b.cfg.OnMeasure != nil {
		if err := b.cfg.OnMeasure(ctx, call); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := server(1)
	if call.Server != nil {
		s = *call.Server
	}

	res := &provider.MeasurementResult{
		ID:            b.cfg.ResultID,
		DownloadSpeed: b.cfg.DownloadSpeed,
		UploadSpeed:   b.cfg.UploadSpeed,
		PingLatency:   b.cfg.PingLatency,
		PingJitter:    b.cfg.PingJitter,
		PersistURL:    b.cfg.PersistURL,
		Server:        &s,
	}
	if b.cfg.PacketLoss != nil {
		loss := *b.cfg.PacketLoss
		res.PacketLoss = &loss
	}
	if b.cfg.DownloadLatency != nil {
		d := *b.cfg.DownloadLatency
		res.DownloadLatency = &d
	}
	if b.cfg.UploadLatency != nil {
		d := *b.cfg.UploadLatency
		res.UploadLatency = &d
	}
	return res, nil
}

func server(i int) provider.Server {
	return provider.Server{
		ID:       strconv.Itoa(i),
		Name:     fmt.Sprintf("Test Server %d", i),
		Location: fmt.Sprintf("Test Location %d", i),
		Country:  "Test Country",
		Host:     fmt.Sprintf("test%d.example.com", i),
	}
}
