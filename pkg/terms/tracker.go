package terms

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bilal/netvelocimeter/pkg/ledger"
	"github.com/bilal/netvelocimeter/pkg/nverr"
)

// Tracker answers whether legal terms were accepted. It keeps an in-memory
// index over a ledger.Store, loaded on construction and written through on
// every Record.
type Tracker struct {
	store ledger.Store
	log   zerolog.Logger
	now   func() time.Time

	mu    sync.RWMutex
	index map[string]ledger.Entry
}

// NewTracker loads store into a new tracker.
func NewTracker(ctx context.Context, store ledger.Store, logger zerolog.Logger) (*Tracker, error) {
	t := &Tracker{
		store: store,
		log:   logger,
		now:   time.Now,
	}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload replaces the index with the store's current contents, picking up
// acceptances recorded by other processes.
func (t *Tracker) Reload(ctx context.Context) error {
	entries, err := t.store.LoadAll(ctx)
	if err != nil {
		return nverr.New("tracker.load", nverr.ErrLedgerIOFailed, err)
	}
	if entries == nil {
		entries = make(map[string]ledger.Entry)
	}

	t.mu.Lock()
	t.index = entries
	t.mu.Unlock()

	t.log.Debug().Int("entries", len(entries)).Msg("acceptance ledger loaded")
	return nil
}

// IsRecorded reports whether every given term has an accepted entry.
// No terms is vacuously true.
func (t *Tracker) IsRecorded(ts ...LegalTerms) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, term := range ts {
		e, ok := t.index[term.UniqueID()]
		if !ok || !e.Accepted {
			return false
		}
	}
	return true
}

// Entry returns the ledger entry for term, if any.
func (t *Tracker) Entry(term LegalTerms) (ledger.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.index[term.UniqueID()]
	return e, ok
}

// Record marks every given term accepted at the current time. Terms sharing
// an id are written once. Recording an accepted term refreshes its
// timestamp. On a storage error the terms saved so far stay recorded and the
// error is returned; the failing term is not marked accepted.
func (t *Tracker) Record(ctx context.Context, ts ...LegalTerms) error {
	now := t.now().UTC().Truncate(time.Second)
	seen := make(map[string]bool, len(ts))

	for _, term := range ts {
		id := term.UniqueID()
		if seen[id] {
			continue
		}
		seen[id] = true

		e := ledger.Entry{AcceptedAt: now, Accepted: true}
		if err := t.store.Save(ctx, id, e); err != nil {
			return nverr.New("tracker.record", nverr.ErrLedgerIOFailed, err)
		}

		t.mu.Lock()
		t.index[id] = e
		t.mu.Unlock()

		t.log.Info().Str("term_id", id).Str("category", string(term.Category())).Msg("legal terms accepted")
	}
	return nil
}
