package format

import (
	"time"

	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

// ProviderRecord describes a registered provider.
type ProviderRecord struct {
	Name        string
	Description string
}

func (r ProviderRecord) Fields() []Field {
	return []Field{
		{"name", r.Name},
		{"description", r.Description},
	}
}

// TermsRecord is a legal terms item with its acceptance status, if known.
type TermsRecord struct {
	Terms    terms.LegalTerms
	Accepted *bool
}

func (r TermsRecord) Fields() []Field {
	fields := []Field{
		{"category", string(r.Terms.Category())},
		{"text", optString(r.Terms.Text())},
		{"url", optString(r.Terms.URL())},
	}
	if r.Accepted != nil {
		fields = append(fields, Field{"accepted", *r.Accepted})
	}
	return fields
}

// ServerRecord is a provider server.
type ServerRecord struct {
	Server provider.Server
}

func (r ServerRecord) Fields() []Field {
	s := r.Server
	return []Field{
		{"id", s.ID},
		{"name", optString(s.Name)},
		{"location", optString(s.Location)},
		{"country", optString(s.Country)},
		{"host", optString(s.Host)},
	}
}

// ResultRecord is a measurement. Speeds are Mbps, durations milliseconds.
type ResultRecord struct {
	Result *provider.MeasurementResult
	// Provider, MeasuredAt and CorrelationID are set for saved results.
	Provider      string
	MeasuredAt    time.Time
	CorrelationID string
}

func (r ResultRecord) Fields() []Field {
	res := r.Result
	var fields []Field
	if r.Provider != "" {
		fields = append(fields, Field{"provider", r.Provider})
	}
	fields = append(fields, []Field{
		{"id", optString(res.ID)},
		{"download_mbps", res.DownloadSpeed},
		{"upload_mbps", res.UploadSpeed},
		{"ping_latency_ms", Millis(res.PingLatency)},
		{"ping_jitter_ms", Millis(res.PingJitter)},
		{"download_latency_ms", optMillis(res.DownloadLatency)},
		{"upload_latency_ms", optMillis(res.UploadLatency)},
		{"packet_loss_pct", optFloat(res.PacketLoss)},
		{"persist_url", optString(res.PersistURL)},
	}...)
	var serverID, serverName any
	if res.Server != nil {
		serverID, serverName = optString(res.Server.ID), optString(res.Server.Name)
	}
	fields = append(fields, Field{"server_id", serverID}, Field{"server_name", serverName})
	if !r.MeasuredAt.IsZero() {
		fields = append(fields, Field{"measured_at", r.MeasuredAt.UTC().Format(time.RFC3339)})
	}
	if r.CorrelationID != "" {
		fields = append(fields, Field{"correlation_id", r.CorrelationID})
	}
	return fields
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optMillis(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return Millis(*d)
}
