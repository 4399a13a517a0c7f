package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bilal/netvelocimeter/internal/config"
	"github.com/bilal/netvelocimeter/pkg/provider"
)

func sampleResult() *provider.MeasurementResult {
	return &provider.MeasurementResult{
		DownloadSpeed: 100,
		UploadSpeed:   50,
		PingLatency:   25 * time.Millisecond,
		PingJitter:    20 * time.Millisecond,
		Server:        &provider.Server{ID: "1", Name: "Test Server 1"},
	}
}

type collector struct {
	mu       sync.Mutex
	batches  [][]Measurement
	headers  []http.Header
	failures int32 // respond 503 this many times first
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&c.failures, -1) >= 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var batch []Measurement
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.batches = append(c.batches, batch)
	c.headers = append(c.headers, r.Header.Clone())
	c.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func newTestHTTP(t *testing.T, url string) *HTTPSink {
	t.Helper()
	t.Setenv("TEST_SINK_TOKEN", "secret")
	s, err := NewHTTP(config.HTTPSinkConfig{
		URL:          url,
		TokenEnv:     "TEST_SINK_TOKEN",
		Timeout:      time.Second,
		SendInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.baseDelay = time.Millisecond
	return s
}

func TestNewMeasurement(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	m := NewMeasurement("host-a", "static", "", at, sampleResult())

	if m.CorrelationID == "" {
		t.Error("correlation id not generated")
	}
	if m.Timestamp.Location() != time.UTC || m.PingLatencyMs != 25 || m.ServerID != "1" {
		t.Errorf("measurement = %+v", m)
	}
}

func TestHTTPSinkFlushesOnClose(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s := newTestHTTP(t, srv.URL)
	s.Start()
	for i := 0; i < 3; i++ {
		if err := s.Publish(context.Background(), NewMeasurement("a", "static", "", time.Now(), sampleResult())); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := c.total(); got != 3 {
		t.Fatalf("posted %d measurements, want 3", got)
	}
	h := c.headers[0]
	if h.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q", h.Get("Authorization"))
	}
	if h.Get("X-Correlation-ID") != c.batches[0][0].CorrelationID {
		t.Errorf("X-Correlation-ID = %q", h.Get("X-Correlation-ID"))
	}
}

func TestHTTPSinkBatchSize(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s := newTestHTTP(t, srv.URL)
	s.batchSize = 2
	s.Start()
	for i := 0; i < 5; i++ {
		s.Publish(context.Background(), NewMeasurement("a", "static", "", time.Now(), sampleResult()))
	}
	s.Close(context.Background())

	if c.total() != 5 {
		t.Fatalf("posted %d, want 5", c.total())
	}
	for _, b := range c.batches {
		if len(b) > 2 {
			t.Errorf("batch of %d exceeds batch size", len(b))
		}
	}
}

func TestHTTPSinkRetries(t *testing.T) {
	c := &collector{failures: 2}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s := newTestHTTP(t, srv.URL)
	s.Start()
	s.Publish(context.Background(), NewMeasurement("a", "static", "", time.Now(), sampleResult()))
	s.Close(context.Background())

	if c.total() != 1 {
		t.Errorf("posted %d after retries, want 1", c.total())
	}
}

func TestHTTPSinkGivesUp(t *testing.T) {
	c := &collector{failures: 100}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s := newTestHTTP(t, srv.URL)
	s.maxAttempts = 2
	s.Start()
	s.Publish(context.Background(), NewMeasurement("a", "static", "", time.Now(), sampleResult()))
	s.Close(context.Background())

	if c.total() != 0 {
		t.Errorf("posted %d, want 0", c.total())
	}
	if remaining := atomic.LoadInt32(&c.failures); remaining != 98 {
		t.Errorf("server saw %d requests, want 2", 100-remaining)
	}
}

func TestHTTPSinkDropsOldestWhenFull(t *testing.T) {
	s, err := NewHTTP(config.HTTPSinkConfig{URL: "http://127.0.0.1:0", MaxQueueSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		if err := s.Publish(ctx, Measurement{CorrelationID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if first := <-s.queue; first.CorrelationID != "2" {
		t.Errorf("oldest kept = %q, want 2", first.CorrelationID)
	}
}

func TestNewHTTPRequiresURL(t *testing.T) {
	if _, err := NewHTTP(config.HTTPSinkConfig{}); err == nil {
		t.Error("missing url should fail")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaSink{writer: w}
	m := NewMeasurement("a", "static", "corr-1", time.Now(), sampleResult())

	if err := k.Publish(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "corr-1" {
		t.Fatalf("messages = %+v", w.msgs)
	}
	var decoded Measurement
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil || decoded.DownloadMbps != 100 {
		t.Errorf("value = %s, %v", w.msgs[0].Value, err)
	}
	k.Close(context.Background())
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNewKafkaValidation(t *testing.T) {
	if _, err := NewKafka(config.KafkaSinkConfig{Topic: "t"}); err == nil {
		t.Error("missing brokers should fail")
	}
	if _, err := NewKafka(config.KafkaSinkConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Error("missing topic should fail")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok, bad := &fakeWriter{}, &fakeWriter{err: boom}
	m := Multi{&KafkaSink{writer: ok}, &KafkaSink{writer: bad}}

	err := m.Publish(context.Background(), Measurement{CorrelationID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Error("healthy sink skipped after a failure")
	}
}

func TestFromConfigEmpty(t *testing.T) {
	m, err := FromConfig(config.SinkConfig{})
	if err != nil || len(m) != 0 {
		t.Errorf("FromConfig() = %v, %v", m, err)
	}
}
