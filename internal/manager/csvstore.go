package manager

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rcsvlog/rcsv/internal/logfile"
)

// DefaultFilename is the manager file used when no path is configured.
const DefaultFilename = "logManager.csv"

// CSVStore keeps the mapping in a delimited text file, one
// path,local,remote entry per line.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by the file at path. The file is
// created on the first Save.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the manager file location.
func (s *CSVStore) Path() string {
	return s.path
}

// Load implements Store.Load. Any malformed line fails the whole load so the
// caller can fall back to a fresh mapping.
func (s *CSVStore) Load() (map[string]Counts, error) {
	entries := make(map[string]Counts)

	// #nosec G304 - manager path comes from configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manager file: %w", err)
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		path, counts, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("manager file line %d: %w", i+1, err)
		}
		entries[path] = counts
	}
	return entries, nil
}

// Save implements Store.Save.
func (s *CSVStore) Save(entries map[string]Counts) error {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		c := entries[p]
		lines = append(lines, fmt.Sprintf("%s,%d,%d", p, c.Local, c.Remote))
	}
	if _, err := logfile.WriteLines(s.path, lines); err != nil {
		return err
	}
	return nil
}

// Close implements Store.Close.
func (s *CSVStore) Close() error { return nil }

// parseEntry splits from the right so paths containing commas survive.
func parseEntry(line string) (string, Counts, error) {
	last := strings.LastIndex(line, ",")
	if last < 0 {
		return "", Counts{}, fmt.Errorf("missing counts in %q", line)
	}
	mid := strings.LastIndex(line[:last], ",")
	if mid <= 0 {
		return "", Counts{}, fmt.Errorf("missing counts in %q", line)
	}

	local, err := strconv.Atoi(line[mid+1 : last])
	if err != nil {
		return "", Counts{}, fmt.Errorf("invalid local count: %w", err)
	}
	remote, err := strconv.Atoi(line[last+1:])
	if err != nil {
		return "", Counts{}, fmt.Errorf("invalid remote count: %w", err)
	}
	c, err := checkCounts(local, remote)
	if err != nil {
		return "", Counts{}, fmt.Errorf("%w in %q", err, line)
	}
	return line[:mid], c, nil
}
