package provider

import (
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

// Server is a measurement endpoint offered by a backend. Empty strings mean
// the backend did not report the field.
type Server struct {
	ID       string
	Name     string
	Location string
	Country  string
	Host     string

	Raw json.RawMessage
}

// matchesHost reports whether host names s, with or without its port.
func (s Server) matchesHost(host string) bool {
	if s.Host == "" {
		return false
	}
	if strings.EqualFold(s.Host, host) {
		return true
	}
	h, _, err := net.SplitHostPort(s.Host)
	return err == nil && strings.EqualFold(h, host)
}

// MeasurementResult is the outcome of one successful measurement. Speeds are
// in Mbps. Optional values are nil or empty when the backend omits them.
type MeasurementResult struct {
	ID            string
	DownloadSpeed float64
	UploadSpeed   float64
	PingLatency   time.Duration
	PingJitter    time.Duration
	PacketLoss    *float64
	PersistURL    string

	DownloadLatency *time.Duration
	UploadLatency   *time.Duration
	// Server is the server the measurement ran against, if known.
	Server *Server

	// Raw is the backend's decoded output.
	Raw json.RawMessage
}

// MeasureOptions selects a server. At most one of ServerID and ServerHost
// may be set; neither lets the backend choose.
type MeasureOptions struct {
	ServerID   string
	ServerHost string
}

// Validate rejects conflicting selectors.
func (o MeasureOptions) Validate() error {
	if o.ServerID != "" && o.ServerHost != "" {
		return nverr.Errorf("measure", nverr.ErrInvalidConfiguration, "server id and server host are mutually exclusive")
	}
	return nil
}

func (o MeasureOptions) selects() bool {
	return o.ServerID != "" || o.ServerHost != ""
}
