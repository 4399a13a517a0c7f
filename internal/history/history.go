// Package history persists measurement results in a local sqlite database.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bilal/netvelocimeter/pkg/provider"
)

// Measurement is one saved measurement result. Speeds are Mbps, latencies
// milliseconds.
type Measurement struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	CorrelationID   string    `gorm:"size:36;uniqueIndex;not null"`
	Provider        string    `gorm:"size:64;index;not null"`
	MeasuredAt      time.Time `gorm:"index;not null"`
	ResultID        string
	DownloadMbps    float64
	UploadMbps      float64
	PingLatencyMs   float64
	PingJitterMs    float64
	DownloadLatency *float64
	UploadLatency   *float64
	PacketLoss      *float64
	PersistURL      string
	ServerID        string `gorm:"index"`
	ServerName      string
	Raw             []byte
}

// Result rebuilds the measurement result. Raw server data is not kept.
func (m *Measurement) Result() *provider.MeasurementResult {
	r := &provider.MeasurementResult{
		ID:              m.ResultID,
		DownloadSpeed:   m.DownloadMbps,
		UploadSpeed:     m.UploadMbps,
		PingLatency:     fromMillis(m.PingLatencyMs),
		PingJitter:      fromMillis(m.PingJitterMs),
		DownloadLatency: optDuration(m.DownloadLatency),
		UploadLatency:   optDuration(m.UploadLatency),
		PacketLoss:      m.PacketLoss,
		PersistURL:      m.PersistURL,
	}
	if m.ServerID != "" || m.ServerName != "" {
		r.Server = &provider.Server{ID: m.ServerID, Name: m.ServerName}
	}
	if len(m.Raw) > 0 {
		r.Raw = json.RawMessage(m.Raw)
	}
	return r
}

// NewMeasurement flattens r. A zero at uses the current time and an empty
// correlationID is generated.
func NewMeasurement(providerName, correlationID string, at time.Time, r *provider.MeasurementResult) *Measurement {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if at.IsZero() {
		at = time.Now()
	}
	m := &Measurement{
		CorrelationID:   correlationID,
		Provider:        providerName,
		MeasuredAt:      at.UTC(),
		ResultID:        r.ID,
		DownloadMbps:    r.DownloadSpeed,
		UploadMbps:      r.UploadSpeed,
		PingLatencyMs:   millis(r.PingLatency),
		PingJitterMs:    millis(r.PingJitter),
		DownloadLatency: optMillis(r.DownloadLatency),
		UploadLatency:   optMillis(r.UploadLatency),
		PacketLoss:      r.PacketLoss,
		PersistURL:      r.PersistURL,
		Raw:             r.Raw,
	}
	if r.Server != nil {
		m.ServerID, m.ServerName = r.Server.ID, r.Server.Name
	}
	return m
}

// Store reads and writes measurements.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return OpenDSN(path)
}

// OpenDSN opens a sqlite database by data source name.
func OpenDSN(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := db.AutoMigrate(&Measurement{}); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts m and sets its ID.
func (s *Store) Save(ctx context.Context, m *Measurement) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("save measurement: %w", err)
	}
	return nil
}

// Recent returns up to limit measurements, newest first, optionally only for
// providerName. A limit <= 0 returns all of them.
func (s *Store) Recent(ctx context.Context, providerName string, limit int) ([]Measurement, error) {
	q := s.db.WithContext(ctx).Order("measured_at DESC").Order("id DESC")
	if providerName != "" {
		q = q.Where("provider = ?", providerName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Measurement
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMillis(ms float64) time.Duration { return time.Duration(ms * float64(time.Millisecond)) }

func optMillis(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	ms := millis(*d)
	return &ms
}

func optDuration(ms *float64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := fromMillis(*ms)
	return &d
}
