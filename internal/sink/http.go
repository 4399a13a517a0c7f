package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bilal/netvelocimeter/internal/config"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 6
	defaultBaseDelay   = 500 * time.Millisecond
)

// HTTPSink posts batches of measurements as a JSON array, with retries and
// buffering.
type HTTPSink struct {
	endpoint     string
	client       *http.Client
	token        string
	queue        chan Measurement
	sendInterval time.Duration
	maxQueue     int

	batchSize   int
	maxAttempts int
	baseDelay   time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	stop   chan struct{}
	ctx    context.Context // cancelled to abort in-flight requests
	cancel context.CancelFunc
}

// NewHTTP creates the sink; it does NOT start the send loop.
func NewHTTP(cfg config.HTTPSinkConfig) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("http sink url not configured")
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		},
	}

	token := ""
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
	}

	maxQ := cfg.MaxQueueSize
	if maxQ <= 0 {
		maxQ = 1000
	}
	interval := cfg.SendInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPSink{
		endpoint:     cfg.URL,
		client:       client,
		token:        token,
		queue:        make(chan Measurement, maxQ),
		sendInterval: interval,
		maxQueue:     maxQ,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		stop:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start background sender loop. Call once.
func (s *HTTPSink) Start() {
	s.wg.Add(1)
	go s.loop()
	log.Info().Int("queue_capacity", s.maxQueue).Str("endpoint", s.endpoint).Msg("http sink started")
}

// Publish enqueues m. It never blocks: when the queue is full the oldest
// measurement is dropped.
func (s *HTTPSink) Publish(_ context.Context, m Measurement) error {
	select {
	case s.queue <- m:
		return nil
	default:
	}
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- m:
		return nil
	default:
		log.Warn().Str("correlation", m.CorrelationID).Msg("measurement dropped: queue full")
		return errors.New("http sink queue full")
	}
}

// Close stops the sender and waits for queued measurements to be posted.
// In-flight requests are aborted once ctx is done.
func (s *HTTPSink) Close(ctx context.Context) error {
	log.Info().Msg("http sink shutdown initiated")
	s.once.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		log.Info().Msg("http sink shutdown complete")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		log.Warn().Msg("http sink shutdown timeout")
		return ctx.Err()
	}
}

// loop batches and sends
func (s *HTTPSink) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sendInterval)
	defer ticker.Stop()

	buffer := make([]Measurement, 0, s.batchSize)
	flush := func() {
		if len(buffer) > 0 {
			s.flushWithRetry(buffer)
			buffer = buffer[:0]
		}
	}

	for {
		select {
		case <-s.stop:
			for {
				select {
				case m := <-s.queue:
					buffer = append(buffer, m)
					if len(buffer) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case m := <-s.queue:
			buffer = append(buffer, m)
			if len(buffer) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// flushWithRetry posts items and retries with exponential backoff + jitter.
func (s *HTTPSink) flushWithRetry(items []Measurement) {
	payload, err := json.Marshal(items)
	if err != nil {
		log.Error().Err(err).Msg("marshal measurements failed")
		return
	}
	correlation := items[0].CorrelationID

	for attempt := 1; ; attempt++ {
		err := s.post(payload, correlation)
		if err == nil {
			log.Info().Int("count", len(items)).Str("correlation", correlation).Msg("measurements posted")
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("count", len(items)).Msg("measurement post failed, will retry")

		if attempt >= s.maxAttempts {
			log.Error().Int("attempts", attempt).Msg("max attempts reached, dropping measurement batch")
			return
		}

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.baseDelay
		jitter := time.Duration(rand.Int63n(int64(s.baseDelay)))
		select {
		case <-time.After(backoff + jitter):
		case <-s.ctx.Done():
			log.Warn().Msg("http sink cancelled during backoff")
			return
		}
	}
}

func (s *HTTPSink) post(payload []byte, correlation string) error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	// the batch carries the first item's correlation id
	req.Header.Set("X-Correlation-ID", correlation)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return nil
}
