package ledger

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "netvelocimeter:legal:"

// RedisStore keeps one string key per id, so several hosts can share one
// acceptance ledger. SET is atomic, last writer wins per id.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	log    zerolog.Logger
}

// NewRedisStore wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, log: logger}
}

// LoadAll scans every key under the prefix. Corrupt values are skipped.
func (s *RedisStore) LoadAll(ctx context.Context) (map[string]Entry, error) {
	entries := make(map[string]Entry)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(s.prefix):]

		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.log.Warn().Err(err).Str("term_id", id).Msg("skipping unreadable ledger record")
			continue
		}
		e, err := decodeEntry(data)
		if err != nil {
			s.log.Warn().Err(err).Str("term_id", id).Msg("skipping corrupt ledger record")
			continue
		}
		entries[id] = e
	}
	if err := iter.Err(); err != nil {
		return nil, nverr.New("ledger.load", nverr.ErrLedgerIOFailed, err)
	}
	return entries, nil
}

// Save stores the record under prefix+id with no expiry.
func (s *RedisStore) Save(ctx context.Context, id string, e Entry) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	if err := s.client.Set(ctx, s.prefix+id, data, 0).Err(); err != nil {
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	s.log.Debug().Str("term_id", id).Msg("acceptance recorded")
	return nil
}
