// Package monitor runs measurements on a schedule for the watch command.
package monitor

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bilal/netvelocimeter/internal/history"
	"github.com/bilal/netvelocimeter/internal/sink"
	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
)

// Measurer is the part of a provider the loop needs.
type Measurer interface {
	Name() string
	Measure(ctx context.Context, opts provider.MeasureOptions) (*provider.MeasurementResult, error)
}

// HistoryStore saves measurements.
type HistoryStore interface {
	Save(ctx context.Context, m *history.Measurement) error
}

// Reporter receives the outcome of every measurement.
type Reporter interface {
	SetRunning(ok bool)
	RecordMeasurement(at time.Time, err error)
}

type Options struct {
	Interval time.Duration
	Measure  provider.MeasureOptions
	// Agent names this host in exported payloads; defaults to the hostname.
	Agent string

	History  HistoryStore // optional
	Sink     sink.Sink    // optional
	Reporter Reporter     // optional

	// OnResult is called after each successful measurement.
	OnResult func(r *provider.MeasurementResult, correlationID string, at time.Time)
	now      func() time.Time
}

type Monitor struct {
	measurer Measurer
	opts     Options
}

func New(m Measurer, opts Options) (*Monitor, error) {
	if m == nil {
		return nil, nverr.Errorf("monitor.new", nverr.ErrInvalidConfiguration, "no provider")
	}
	if opts.Interval <= 0 {
		return nil, nverr.Errorf("monitor.new", nverr.ErrInvalidConfiguration, "interval must be positive, got %v", opts.Interval)
	}
	if err := opts.Measure.Validate(); err != nil {
		return nil, err
	}
	if opts.Agent == "" {
		opts.Agent, _ = os.Hostname()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Monitor{measurer: m, opts: opts}, nil
}

// Run measures immediately and then every interval until ctx is done. It
// returns early only when a measurement needs consent, since no later
// attempt can succeed without it.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Str("provider", m.measurer.Name()).Dur("interval", m.opts.Interval).Msg("monitor started")
	if m.opts.Reporter != nil {
		m.opts.Reporter.SetRunning(true)
		defer m.opts.Reporter.SetRunning(false)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx); errors.Is(err, nverr.ErrConsentRequired) {
			return err
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("monitor stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs one measurement, then saves and exports it.
func (m *Monitor) RunOnce(ctx context.Context) error {
	at := m.opts.now()
	correlationID := uuid.NewString()

	result, err := m.measurer.Measure(ctx, m.opts.Measure)
	if m.opts.Reporter != nil {
		m.opts.Reporter.RecordMeasurement(at, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Str("provider", m.measurer.Name()).Str("correlation", correlationID).Msg("measurement failed")
		return err
	}

	log.Info().
		Str("provider", m.measurer.Name()).
		Str("correlation", correlationID).
		Float64("download_mbps", result.DownloadSpeed).
		Float64("upload_mbps", result.UploadSpeed).
		Dur("ping_latency", result.PingLatency).
		Dur("ping_jitter", result.PingJitter).
		Msg("measurement completed")

	if m.opts.History != nil {
		if err := m.opts.History.Save(ctx, history.NewMeasurement(m.measurer.Name(), correlationID, at, result)); err != nil {
			log.Error().Err(err).Str("correlation", correlationID).Msg("saving measurement failed")
		}
	}
	if m.opts.Sink != nil {
		payload := sink.NewMeasurement(m.opts.Agent, m.measurer.Name(), correlationID, at, result)
		if err := m.opts.Sink.Publish(ctx, payload); err != nil {
			log.Warn().Err(err).Str("correlation", correlationID).Msg("exporting measurement failed")
		}
	}
	if m.opts.OnResult != nil {
		m.opts.OnResult(result, correlationID, at)
	}
	return nil
}
