// Package health serves the watch loop's liveness and last measurement.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type Server struct {
	addr     string
	running  int32
	lastOk   int32
	failures int64

	mu       sync.RWMutex
	provider string
	lastAt   time.Time
	lastErr  string

	srv *http.Server
}

func New(addr string) *Server {
	s := &Server{addr: addr}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) SetRunning(ok bool) {
	if ok {
		atomic.StoreInt32(&s.running, 1)
	} else {
		atomic.StoreInt32(&s.running, 0)
	}
}

// SetProvider names the provider being measured.
func (s *Server) SetProvider(name string) {
	s.mu.Lock()
	s.provider = name
	s.mu.Unlock()
}

// RecordMeasurement stores the outcome of a measurement attempt.
func (s *Server) RecordMeasurement(at time.Time, err error) {
	s.mu.Lock()
	s.lastAt = at
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		atomic.StoreInt32(&s.lastOk, 0)
		atomic.AddInt64(&s.failures, 1)
		return
	}
	atomic.StoreInt32(&s.lastOk, 1)
	atomic.StoreInt64(&s.failures, 0)
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("health server listening")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type status struct {
	Running             bool       `json:"running"`
	Provider            string     `json:"provider,omitempty"`
	LastMeasurementOk   bool       `json:"last_measurement_ok"`
	LastMeasurementAt   *time.Time `json:"last_measurement_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int64      `json:"consecutive_failures"`
}

func (s *Server) status() status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := status{
		Running:             atomic.LoadInt32(&s.running) == 1,
		Provider:            s.provider,
		LastMeasurementOk:   atomic.LoadInt32(&s.lastOk) == 1,
		LastError:           s.lastErr,
		ConsecutiveFailures: atomic.LoadInt64(&s.failures),
	}
	if !s.lastAt.IsZero() {
		at := s.lastAt
		st.LastMeasurementAt = &at
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

// handleReady answers 503 until the loop runs and its last measurement
// succeeded.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	w.Header().Set("Content-Type", "application/json")
	if !st.Running || !st.LastMeasurementOk {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(st)
}
