// Package ledger stores legal-terms acceptances keyed by terms id.
//
// Stores hold one record per id. Save must be atomic with respect to
// concurrent readers; LoadAll skips records it cannot decode.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

// Entry is one acceptance record.
type Entry struct {
	AcceptedAt time.Time `json:"ts"`
	Accepted   bool      `json:"accepted"`
}

// Store is the durable side of an acceptance tracker.
type Store interface {
	// LoadAll returns every decodable record.
	LoadAll(ctx context.Context) (map[string]Entry, error)
	// Save inserts or replaces the record for id.
	Save(ctx context.Context, id string, e Entry) error
}

// record is the on-disk shape. Records written before the accepted flag
// existed carry only "ts"; their presence alone meant acceptance.
type record struct {
	TS       string `json:"ts"`
	Accepted *bool  `json:"accepted,omitempty"`
}

func encodeEntry(e Entry) ([]byte, error) {
	accepted := e.Accepted
	return json.Marshal(record{
		TS:       e.AcceptedAt.UTC().Format(time.RFC3339),
		Accepted: &accepted,
	})
}

func decodeEntry(data []byte) (Entry, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return Entry{}, err
	}
	ts, err := time.Parse(time.RFC3339, r.TS)
	if err != nil {
		return Entry{}, fmt.Errorf("timestamp: %w", err)
	}
	accepted := true
	if r.Accepted != nil {
		accepted = *r.Accepted
	}
	return Entry{AcceptedAt: ts, Accepted: accepted}, nil
}

// validateID rejects ids that could escape a store's namespace.
func validateID(id string) error {
	if id == "" {
		return nverr.Errorf("ledger.save", nverr.ErrInvalidConfiguration, "empty terms id")
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\:`) {
			return nverr.Errorf("ledger.save", nverr.ErrInvalidConfiguration, "invalid terms id %q", id)
		}
	}
	return nil
}
