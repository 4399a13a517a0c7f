// Package sink exports measurement results to an HTTP collector and Kafka.
package sink

import (
	"context"
	"errors"

	"github.com/bilal/netvelocimeter/internal/config"
)

// Multi fans out to every sink it holds.
type Multi []Sink

// Publish publishes to every sink and joins their errors.
func (m Multi) Publish(ctx context.Context, meas Measurement) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, meas); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds and starts the configured sinks. It returns an empty
// Multi when none are configured.
func FromConfig(cfg config.SinkConfig) (Multi, error) {
	var out Multi
	if cfg.HTTP.URL != "" {
		h, err := NewHTTP(cfg.HTTP)
		if err != nil {
			return nil, err
		}
		h.Start()
		out = append(out, h)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := NewKafka(cfg.Kafka)
		if err != nil {
			out.Close(context.Background())
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
