package ookla

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bilal/netvelocimeter/pkg/nverr"
	"github.com/bilal/netvelocimeter/pkg/provider"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type serverJSON struct {
	ID       flexString `json:"id"`
	Name     string     `json:"name"`
	Location string     `json:"location"`
	Country  string     `json:"country"`
	Host     string     `json:"host"`
	Port     int        `json:"port"`
}

func (s serverJSON) toServer(raw json.RawMessage) provider.Server {
	return provider.Server{
		ID:       string(s.ID),
		Name:     s.Name,
		Location: s.Location,
		Country:  s.Country,
		Host:     s.Host,
		Raw:      raw,
	}
}

type latencyJSON struct {
	IQM *float64 `json:"iqm"`
}

type transferJSON struct {
	Bandwidth *float64    `json:"bandwidth"` // bytes per second
	Latency   latencyJSON `json:"latency"`
}

type resultJSON struct {
	Ping struct {
		Latency *float64 `json:"latency"`
		Jitter  *float64 `json:"jitter"`
	} `json:"ping"`
	Download   *transferJSON   `json:"download"`
	Upload     *transferJSON   `json:"upload"`
	PacketLoss *float64        `json:"packetLoss"`
	Server     json.RawMessage `json:"server"`
	Result     struct {
		ID        string `json:"id"`
		URL       string `json:"url"`
		Persisted bool   `json:"persisted"`
	} `json:"result"`
}

// parseResult maps the CLI's JSON report onto a MeasurementResult.
// Bandwidths are converted from bytes/s to Mbps and latencies from ms.
func parseResult(data []byte) (*provider.MeasurementResult, error) {
	const op = "ookla.parse"

	var r resultJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, nverr.New(op, nverr.ErrResultUnparsable, err)
	}

	var missing []string
	if r.Download == nil || r.Download.Bandwidth == nil {
		missing = append(missing, "download.bandwidth")
	}
	if r.Upload == nil || r.Upload.Bandwidth == nil {
		missing = append(missing, "upload.bandwidth")
	}
	if r.Ping.Latency == nil {
		missing = append(missing, "ping.latency")
	}
	if len(missing) > 0 {
		return nil, nverr.Errorf(op, nverr.ErrResultUnparsable, "missing %s", strings.Join(missing, ", "))
	}

	res := &provider.MeasurementResult{
		ID:            r.Result.ID,
		DownloadSpeed: mbps(*r.Download.Bandwidth),
		UploadSpeed:   mbps(*r.Upload.Bandwidth),
		PingLatency:   millis(*r.Ping.Latency),
		PacketLoss:    r.PacketLoss,
		Raw:           json.RawMessage(bytes.Clone(data)),
	}
	if r.Ping.Jitter != nil {
		res.PingJitter = millis(*r.Ping.Jitter)
	}
	if r.Result.Persisted {
		res.PersistURL = r.Result.URL
	}
	if iqm := r.Download.Latency.IQM; iqm != nil {
		d := millis(*iqm)
		res.DownloadLatency = &d
	}
	if iqm := r.Upload.Latency.IQM; iqm != nil {
		d := millis(*iqm)
		res.UploadLatency = &d
	}
	if len(r.Server) > 0 && !bytes.Equal(r.Server, []byte("null")) {
		var s serverJSON
		if err := json.Unmarshal(r.Server, &s); err == nil {
			srv := s.toServer(r.Server)
			res.Server = &srv
		}
	}
	return res, nil
}

// parseServers decodes the output of --servers.
func parseServers(data []byte) ([]provider.Server, error) {
	var list struct {
		Servers []json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, nverr.New("ookla.servers", nverr.ErrResultUnparsable, err)
	}

	servers := make([]provider.Server, 0, len(list.Servers))
	for _, raw := range list.Servers {
		var s serverJSON
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nverr.New("ookla.servers", nverr.ErrResultUnparsable, err)
		}
		if s.ID == "" {
			return nil, nverr.New("ookla.servers", nverr.ErrResultUnparsable, errors.New("server without id"))
		}
		servers = append(servers, s.toServer(raw))
	}
	return servers, nil
}

func mbps(bytesPerSecond float64) float64 {
	return bytesPerSecond * 8 / 1_000_000
}

func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
