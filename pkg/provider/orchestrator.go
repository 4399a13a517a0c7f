package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// DefaultMeasureTimeout bounds one backend call.
const DefaultMeasureTimeout = 3 * time.Minute

// OrchestratorOptions configures an Orchestrator. Zero values pick defaults.
type OrchestratorOptions struct {
	MeasureTimeout time.Duration
	Logger         *zerolog.Logger
	// OnTransition, if set, is called for every state change of Measure.
	OnTransition func(from, to State)
}

// Orchestrator turns a Backend into a Provider. It is safe for concurrent
// use if the backend is.
type Orchestrator struct {
	backend Backend
	tracker TermsTracker
	timeout time.Duration
	log     zerolog.Logger
	observe func(from, to State)

	mu      sync.Mutex
	last    State
	lastErr error
}

// NewOrchestrator wraps backend. tracker must not be nil.
func NewOrchestrator(backend Backend, tracker TermsTracker, opts OrchestratorOptions) (*Orchestrator, error) {
	if backend == nil || tracker == nil {
		return nil, nverr.Errorf("provider.new", nverr.ErrInvalidConfiguration, "backend and tracker are required")
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	o := &Orchestrator{
		backend: backend,
		tracker: tracker,
		timeout: opts.MeasureTimeout,
		log:     logger.With().Str("provider", backend.Name()).Logger(),
		observe: opts.OnTransition,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultMeasureTimeout
	}
	return o, nil
}

// Name implements Provider.
func (o *Orchestrator) Name() string { return o.backend.Name() }

// Version implements Provider.
func (o *Orchestrator) Version() *version.Version {
	if v := o.backend.Version(); v != nil {
		return v
	}
	return ZeroVersion()
}

// Backend returns the wrapped backend.
func (o *Orchestrator) Backend() Backend { return o.backend }

// LegalTerms implements Provider.
func (o *Orchestrator) LegalTerms(categories ...terms.Category) terms.Collection {
	return o.backend.Terms().Filter(categories...)
}

// HasAcceptedTerms implements Provider.
func (o *Orchestrator) HasAcceptedTerms(c terms.Collection) bool {
	if c == nil {
		c = o.backend.Terms()
	}
	return o.tracker.IsRecorded(c...)
}

// AcceptTerms implements Provider.
func (o *Orchestrator) AcceptTerms(ctx context.Context, c terms.Collection) error {
	return o.tracker.Record(ctx, c...)
}

// Servers implements Provider.
func (o *Orchestrator) Servers(ctx context.Context) ([]Server, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	servers, err := o.backend.Servers(ctx, Call{TermsAccepted: o.HasAcceptedTerms(nil)})
	if err != nil {
		return nil, backendError(ctx, "servers", err)
	}
	return servers, nil
}

// LastState returns the state the most recent Measure ended in and its
// error, or Unchecked if Measure never ran.
func (o *Orchestrator) LastState() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == "" {
		return Unchecked, nil
	}
	return o.last, o.lastErr
}

// Measure implements Provider. Consent is checked before the backend is
// touched in any way; selector conflicts are rejected before that.
func (o *Orchestrator) Measure(ctx context.Context, opts MeasureOptions) (*MeasurementResult, error) {
	m := &measurement{o: o, state: Unchecked, log: o.log}

	res, err := m.run(ctx, opts)

	o.mu.Lock()
	o.last, o.lastErr = m.state, err
	o.mu.Unlock()
	return res, err
}

// measurement is one pass through the state machine.
type measurement struct {
	o     *Orchestrator
	state State
	log   zerolog.Logger
}

func (m *measurement) advance(to State) {
	from := m.state
	if !CanTransition(from, to) {
		m.log.Error().Str("from", string(from)).Str("state", string(to)).Msg("illegal measurement transition")
	}
	m.state = to
	m.log.Debug().Str("from", string(from)).Str("state", string(to)).Msg("measurement state")
	if m.o.observe != nil {
		m.o.observe(from, to)
	}
}

func (m *measurement) reject(err error) (*MeasurementResult, error) {
	m.advance(Rejected)
	m.log.Warn().Err(err).Msg("measurement rejected")
	return nil, err
}

func (m *measurement) run(ctx context.Context, opts MeasureOptions) (*MeasurementResult, error) {
	if err := opts.Validate(); err != nil {
		return m.reject(err)
	}
	if !m.o.HasAcceptedTerms(nil) {
		return m.reject(nverr.Errorf("measure", nverr.ErrConsentRequired,
			"accept the legal terms of provider %q first", m.o.Name()))
	}
	m.advance(ResolvingServer)

	ctx, cancel := context.WithTimeout(ctx, m.o.timeout)
	defer cancel()

	call := Call{TermsAccepted: true}
	if opts.selects() {
		server, err := m.resolveServer(ctx, opts)
		if err != nil {
			return m.reject(err)
		}
		call.Server = server
		m.log.Info().Str("server_id", server.ID).Str("server_host", server.Host).Msg("server selected")
	}
	m.advance(Invoking)

	res, err := m.o.backend.Measure(ctx, call)
	if err != nil {
		return m.reject(backendError(ctx, "measure", err))
	}
	if res == nil {
		return m.reject(nverr.Errorf("measure", nverr.ErrResultUnparsable, "backend returned no result"))
	}
	if res.Server == nil && call.Server != nil {
		s := *call.Server
		res.Server = &s
	}
	m.advance(Result)

	m.log.Info().
		Float64("download_mbps", res.DownloadSpeed).
		Float64("upload_mbps", res.UploadSpeed).
		Dur("ping", res.PingLatency).
		Msg("measurement complete")
	return res, nil
}

func (m *measurement) resolveServer(ctx context.Context, opts MeasureOptions) (*Server, error) {
	servers, err := m.o.backend.Servers(ctx, Call{TermsAccepted: true})
	if err != nil {
		return nil, backendError(ctx, "measure.servers", err)
	}
	for i := range servers {
		s := servers[i]
		if opts.ServerID != "" && s.ID == opts.ServerID {
			return &s, nil
		}
		if opts.ServerHost != "" && s.matchesHost(opts.ServerHost) {
			return &s, nil
		}
	}
	if opts.ServerID != "" {
		return nil, nverr.Errorf("measure", nverr.ErrServerNotFound, "no server with id %q", opts.ServerID)
	}
	return nil, nverr.Errorf("measure", nverr.ErrServerNotFound, "no server with host %q", opts.ServerHost)
}

// backendError keeps a kind the backend already assigned and otherwise
// classifies err as a process failure, attaching the context error.
func backendError(ctx context.Context, op string, err error) error {
	if nverr.KindOf(err) != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", err, ctxErr)
	}
	return nverr.New(op, nverr.ErrBackendProcessFailed, err)
}
