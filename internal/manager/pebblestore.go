package manager

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
)

var pebblePrefix = []byte("logmgr/")

// PebbleStore keeps the mapping in a Pebble key-value directory, one key
// per log file.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) the Pebble directory at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Load implements Store.Load.
func (s *PebbleStore) Load() (map[string]Counts, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: pebblePrefix,
		UpperBound: prefixEnd(pebblePrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	entries := make(map[string]Counts)
	for iter.First(); iter.Valid(); iter.Next() {
		path := string(iter.Key()[len(pebblePrefix):])
		c, err := decodeCounts(string(iter.Value()))
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", path, err)
		}
		entries[path] = c
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate pebble store: %w", err)
	}
	return entries, nil
}

// Save implements Store.Save. Stale keys are deleted in the same batch.
func (s *PebbleStore) Save(entries map[string]Counts) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(pebblePrefix, prefixEnd(pebblePrefix), nil); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	for path, c := range entries {
		key := append(append([]byte{}, pebblePrefix...), path...)
		val := strconv.Itoa(c.Local) + "," + strconv.Itoa(c.Remote)
		if err := b.Set(key, []byte(val), nil); err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit pebble batch: %w", err)
	}
	return nil
}

// Close implements Store.Close.
func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func decodeCounts(v string) (Counts, error) {
	local, remote, ok := strings.Cut(v, ",")
	if !ok {
		return Counts{}, fmt.Errorf("malformed value %q", v)
	}
	l, err := strconv.Atoi(local)
	if err != nil {
		return Counts{}, fmt.Errorf("invalid local count: %w", err)
	}
	r, err := strconv.Atoi(remote)
	if err != nil {
		return Counts{}, fmt.Errorf("invalid remote count: %w", err)
	}
	return checkCounts(l, r)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
