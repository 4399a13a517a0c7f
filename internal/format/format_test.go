package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

func sampleResult() *provider.MeasurementResult {
	dl := 30 * time.Millisecond
	return &provider.MeasurementResult{
		DownloadSpeed:   100,
		UploadSpeed:     50,
		PingLatency:     25 * time.Millisecond,
		PingJitter:      20 * time.Millisecond,
		DownloadLatency: &dl,
		PersistURL:      "https://example.com/results/static-test-1234",
		Server:          &provider.Server{ID: "1", Name: "Test Server 1"},
	}
}

func TestParse(t *testing.T) {
	for _, in := range []string{"text", "CSV", " tsv ", "json"} {
		if _, err := Parse(in); err != nil {
			t.Errorf("Parse(%q) error = %v", in, err)
		}
	}
	if _, err := Parse("xml"); err == nil {
		t.Error("Parse(xml) should fail")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Text, []Record{ResultRecord{Result: sampleResult()}}, Options{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"download_mbps: 100.00\n",
		"ping_latency_ms: 25.00\n",
		"server_id: 1\n",
		"persist_url: https://example.com/results/static-test-1234\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	for _, absent := range []string{"packet_loss_pct", "upload_latency_ms", "\nid:"} {
		if strings.Contains(out, absent) {
			t.Errorf("text output should omit %q:\n%s", absent, out)
		}
	}
}

func TestWriteTextSeparatesRecords(t *testing.T) {
	records := []Record{
		ProviderRecord{Name: "ookla", Description: "a"},
		ProviderRecord{Name: "static", Description: "b"},
	}
	var buf bytes.Buffer
	if err := Write(&buf, Text, records, Options{}); err != nil {
		t.Fatal(err)
	}
	want := "name: ookla\ndescription: a\n\nname: static\ndescription: b\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriteDelimited(t *testing.T) {
	term := terms.MustNew(terms.CategoryEULA, "line one\nline\ttwo", "https://example.com/eula")
	accepted := true
	records := []Record{TermsRecord{Terms: term, Accepted: &accepted}}

	tests := []struct {
		name   string
		format Format
		opts   Options
		want   string
	}{
		{
			name:   "csv escaped",
			format: CSV,
			opts:   Options{EscapeWhitespace: true},
			want:   "category,text,url,accepted\neula,line one\\nline\\ttwo,https://example.com/eula,true\n",
		},
		{
			name:   "tsv escaped",
			format: TSV,
			opts:   Options{EscapeWhitespace: true},
			want:   "category\ttext\turl\taccepted\neula\tline one\\nline\\ttwo\thttps://example.com/eula\ttrue\n",
		},
		{
			name:   "csv quoted",
			format: CSV,
			want:   "category,text,url,accepted\neula,\"line one\nline\ttwo\",https://example.com/eula,true\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, tt.format, records, tt.opts); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	records := []Record{ResultRecord{Result: sampleResult(), CorrelationID: "abc"}}
	if err := Write(&buf, JSON, records, Options{}); err != nil {
		t.Fatal(err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 {
		t.Fatalf("got %d records", len(decoded))
	}
	r := decoded[0]
	if r["download_mbps"] != 100.0 || r["correlation_id"] != "abc" {
		t.Errorf("record = %v", r)
	}
	if v, ok := r["packet_loss_pct"]; !ok || v != nil {
		t.Errorf("packet_loss_pct = %v, %v; want explicit null", v, ok)
	}
}

func TestTermsJSONRoundTrip(t *testing.T) {
	// legal list -f json | legal accept
	c := terms.Collection{
		terms.MustNew(terms.CategoryEULA, "Test EULA", "https://example.com/eula"),
		terms.MustNew(terms.CategoryPrivacy, "", "https://example.com/privacy"),
	}
	records := make([]Record, len(c))
	for i, term := range c {
		records[i] = TermsRecord{Terms: term}
	}
	var buf bytes.Buffer
	if err := Write(&buf, JSON, records, Options{}); err != nil {
		t.Fatal(err)
	}

	parsed, err := terms.ParseJSON(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseJSON() error = %v\n%s", err, buf.String())
	}
	if len(parsed) != 2 || parsed[0].UniqueID() != c[0].UniqueID() || parsed[1].UniqueID() != c[1].UniqueID() {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestEscapeWhitespace(t *testing.T) {
	in := "a\\b\nc\rd\te\ff\vg"
	want := `a\\b\nc\rd\te\ff\vg`
	if got := EscapeWhitespace(in); got != want {
		t.Errorf("EscapeWhitespace() = %q, want %q", got, want)
	}
}

func TestWriteNothing(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, JSON, nil, Options{}); err != nil || buf.Len() != 0 {
		t.Errorf("Write(nil) = %q, %v", buf.String(), err)
	}
}
