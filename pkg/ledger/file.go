package ledger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

const recordExt = ".json"

// FileStore keeps one JSON file per id below root. An id "1/abc" lives at
// root/1/abc.json.
type FileStore struct {
	root string
	log  zerolog.Logger
}

// NewFileStore creates root (mode 0750) if needed. root must be absolute.
func NewFileStore(root string, logger zerolog.Logger) (*FileStore, error) {
	if !filepath.IsAbs(root) {
		return nil, nverr.Errorf("ledger.open", nverr.ErrInvalidConfiguration, "ledger root %q is not absolute", root)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, nverr.New("ledger.open", nverr.ErrLedgerIOFailed, err)
	}

	logger.Info().Str("path", root).Msg("legal terms tracking")
	return &FileStore{root: root, log: logger}, nil
}

// Root returns the ledger directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id)) + recordExt
}

// LoadAll walks root. Unreadable or corrupt records are logged and skipped;
// only a failure to read root itself is returned.
func (s *FileStore) LoadAll(ctx context.Context) (map[string]Entry, error) {
	entries := make(map[string]Entry)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.root {
				return err
			}
			s.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable ledger path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), recordExt) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		id := strings.TrimSuffix(filepath.ToSlash(rel), recordExt)

		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("term_id", id).Msg("skipping unreadable ledger record")
			return nil
		}
		e, err := decodeEntry(data)
		if err != nil {
			s.log.Warn().Err(err).Str("term_id", id).Msg("skipping corrupt ledger record")
			return nil
		}
		entries[id] = e
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, nverr.New("ledger.load", nverr.ErrLedgerIOFailed, err)
	}
	return entries, nil
}

// Save writes the record to a temporary file in the target directory and
// renames it into place, so readers never see a torn record.
func (s *FileStore) Save(ctx context.Context, id string, e Entry) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeEntry(e)
	if err != nil {
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}

	target := s.path(id)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return nverr.New("ledger.save", nverr.ErrLedgerIOFailed, err)
	}

	s.log.Debug().Str("term_id", id).Msg("acceptance recorded")
	return nil
}
