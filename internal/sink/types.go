package sink

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bilal/netvelocimeter/pkg/provider"
)

// Measurement is the JSON payload exported for each measurement result.
type Measurement struct {
	Agent         string    `json:"agent"`
	Provider      string    `json:"provider"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	ResultID      string    `json:"result_id,omitempty"`
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	PingLatencyMs float64   `json:"ping_latency_ms"`
	PingJitterMs  float64   `json:"ping_jitter_ms"`
	PacketLoss    *float64  `json:"packet_loss_pct,omitempty"`
	PersistURL    string    `json:"persist_url,omitempty"`
	ServerID      string    `json:"server_id,omitempty"`
	ServerName    string    `json:"server_name,omitempty"`
}

// NewMeasurement builds the payload for r. An empty correlationID is
// generated.
func NewMeasurement(agent, providerName, correlationID string, at time.Time, r *provider.MeasurementResult) Measurement {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	m := Measurement{
		Agent:         agent,
		Provider:      providerName,
		Timestamp:     at.UTC(),
		CorrelationID: correlationID,
		ResultID:      r.ID,
		DownloadMbps:  r.DownloadSpeed,
		UploadMbps:    r.UploadSpeed,
		PingLatencyMs: float64(r.PingLatency) / float64(time.Millisecond),
		PingJitterMs:  float64(r.PingJitter) / float64(time.Millisecond),
		PacketLoss:    r.PacketLoss,
		PersistURL:    r.PersistURL,
	}
	if r.Server != nil {
		m.ServerID, m.ServerName = r.Server.ID, r.Server.Name
	}
	return m
}

// Sink exports measurements somewhere outside the process.
type Sink interface {
	Publish(ctx context.Context, m Measurement) error
	// Close flushes pending measurements, giving up when ctx is done.
	Close(ctx context.Context) error
}
