package ookla

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

const sampleResult = `{
  "type": "result",
  "timestamp": "2025-03-01T10:00:00Z",
  "ping": {"jitter": 3.2, "latency": 15.5, "low": 14.9, "high": 17.1},
  "download": {"bandwidth": 12500000, "bytes": 150000000, "elapsed": 12000, "latency": {"iqm": 42.985}},
  "upload": {"bandwidth": 2500000, "bytes": 30000000, "elapsed": 12000, "latency": {"iqm": 178.546}},
  "packetLoss": 0.5,
  "isp": "Example ISP",
  "server": {"id": 1234, "host": "speedtest.example.net", "port": 8080, "name": "Example", "location": "Town", "country": "Country"},
  "result": {"id": "0e2bb5f4-4b6d-4c7a-9a1e-13a5a3c9a8c1", "url": "https://www.speedtest.net/result/c/0e2bb5f4", "persisted": true}
}`

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseResult(t *testing.T) {
	res, err := parseResult([]byte(sampleResult))
	if err != nil {
		t.Fatalf("parseResult() error = %v", err)
	}

	if !near(res.DownloadSpeed, 100) {
		t.Errorf("DownloadSpeed = %v, want 100", res.DownloadSpeed)
	}
	if !near(res.UploadSpeed, 20) {
		t.Errorf("UploadSpeed = %v, want 20", res.UploadSpeed)
	}
	if res.PingLatency != 15500*time.Microsecond {
		t.Errorf("PingLatency = %v", res.PingLatency)
	}
	if res.PingJitter != 3200*time.Microsecond {
		t.Errorf("PingJitter = %v", res.PingJitter)
	}
	if res.DownloadLatency == nil || *res.DownloadLatency != 42985*time.Microsecond {
		t.Errorf("DownloadLatency = %v", res.DownloadLatency)
	}
	if res.UploadLatency == nil || *res.UploadLatency != 178546*time.Microsecond {
		t.Errorf("UploadLatency = %v", res.UploadLatency)
	}
	if res.PacketLoss == nil || *res.PacketLoss != 0.5 {
		t.Errorf("PacketLoss = %v", res.PacketLoss)
	}
	if res.ID != "0e2bb5f4-4b6d-4c7a-9a1e-13a5a3c9a8c1" {
		t.Errorf("ID = %q", res.ID)
	}
	if res.PersistURL != "https://www.speedtest.net/result/c/0e2bb5f4" {
		t.Errorf("PersistURL = %q", res.PersistURL)
	}
	if res.Server == nil || res.Server.ID != "1234" || res.Server.Host != "speedtest.example.net" {
		t.Errorf("Server = %+v", res.Server)
	}
	if len(res.Raw) == 0 {
		t.Error("Raw not kept")
	}
}

func TestParseResultOptionalFields(t *testing.T) {
	data := `{
  "ping": {"latency": 15.5},
  "download": {"bandwidth": 12500000},
  "upload": {"bandwidth": 2500000},
  "result": {"id": "abc", "url": "https://www.speedtest.net/result/c/abc", "persisted": false}
}`
	res, err := parseResult([]byte(data))
	if err != nil {
		t.Fatalf("parseResult() error = %v", err)
	}
	if res.PacketLoss != nil {
		t.Errorf("PacketLoss = %v, want absent", *res.PacketLoss)
	}
	if res.PersistURL != "" {
		t.Errorf("PersistURL = %q, want absent for unpersisted result", res.PersistURL)
	}
	if res.PingJitter != 0 {
		t.Errorf("PingJitter = %v, want 0", res.PingJitter)
	}
	if res.DownloadLatency != nil || res.UploadLatency != nil || res.Server != nil {
		t.Errorf("unexpected optional values: %+v", res)
	}
}

func TestParseResultRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `Speedtest failed`},
		{"empty object", `{}`},
		{"no upload", `{"ping": {"latency": 1}, "download": {"bandwidth": 1}}`},
		{"no ping", `{"download": {"bandwidth": 1}, "upload": {"bandwidth": 1}}`},
		{"bandwidth wrong type", `{"ping": {"latency": 1}, "download": {"bandwidth": "fast"}, "upload": {"bandwidth": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResult([]byte(tt.data))
			if !errors.Is(err, nverr.ErrResultUnparsable) {
				t.Fatalf("parseResult() error = %v, want ErrResultUnparsable", err)
			}
		})
	}
}

func TestParseServers(t *testing.T) {
	data := `{"type": "serverList", "servers": [
  {"id": 1, "host": "server1.example.com", "port": 8080, "name": "Server 1", "location": "City 1", "country": "Country 1"},
  {"id": "2", "host": "server2.example.com", "port": 8080, "name": "Server 2", "location": "City 2", "country": "Country 2"}
]}`
	servers, err := parseServers([]byte(data))
	if err != nil {
		t.Fatalf("parseServers() error = %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers", len(servers))
	}
	if servers[0].ID != "1" || servers[0].Host != "server1.example.com" || servers[0].Name != "Server 1" {
		t.Errorf("servers[0] = %+v", servers[0])
	}
	if servers[1].ID != "2" || servers[1].Country != "Country 2" {
		t.Errorf("servers[1] = %+v", servers[1])
	}

	if got, err := parseServers([]byte(`{"servers": []}`)); err != nil || len(got) != 0 {
		t.Errorf("empty list = %v, %v", got, err)
	}
	if _, err := parseServers([]byte(`{"servers": [{"name": "x"}]}`)); !errors.Is(err, nverr.ErrResultUnparsable) {
		t.Errorf("server without id error = %v", err)
	}
}
