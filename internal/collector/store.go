package collector

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rcsvlog/rcsv/internal/logfile"
	"github.com/rcsvlog/rcsv/internal/row"
)

// FileInfo describes one mirrored log file.
type FileInfo struct {
	InstanceID string `json:"instance_id"`
	File       string `json:"file"`
	Path       string `json:"path"`
	// Rows is the number of data rows on disk.
	Rows int `json:"rows"`
	// Next is the client row index the next batch is expected to start at.
	Next int `json:"next"`
}

// Result reports what Accept did with a batch.
type Result struct {
	// Accepted rows were new and appended.
	Accepted int
	// Duplicates were already held and skipped.
	Duplicates int
	// Total is the client row index after the batch.
	Total int
}

// Store appends incoming rows to one CSV file per client file, under
// <dir>/<instance>/<client path>. Rows are de-duplicated by their client
// row index, so a re-sent batch is acknowledged without being written twice.
type Store struct {
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	files map[string]*FileInfo // instance + "\x00" + file
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, logger *log.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*FileInfo),
	}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Accept appends the rows of b that the store does not hold yet.
func (s *Store) Accept(b *batch) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.lookup(b.InstanceID, b.File)
	if err != nil {
		return Result{}, err
	}

	end := b.From + len(b.Rows)
	if b.From < info.Next {
		s.checkOverlap(info, b)
	}
	if end <= info.Next {
		return Result{Duplicates: len(b.Rows), Total: info.Next}, nil
	}
	if b.From > info.Next {
		s.logger.Printf("WARNING: %s: rows %d-%d never arrived", info.Path, info.Next, b.From-1)
	}

	skip := info.Next - b.From
	if skip < 0 {
		skip = 0
	}
	lines := make([]string, 0, len(b.Rows)-skip)
	for _, cells := range b.Rows[skip:] {
		lines = append(lines, strings.Join(cells, row.Delimiter))
	}

	if _, err := logfile.AppendLines(info.Path, strings.Join(b.Header, row.Delimiter), lines); err != nil {
		return Result{}, fmt.Errorf("failed to store rows: %w", err)
	}
	info.Rows += len(lines)
	info.Next = end

	return Result{Accepted: len(lines), Duplicates: skip, Total: end}, nil
}

// checkOverlap compares the re-sent part of b with the rows already stored
// and warns on a mismatch, which means the client file was replaced and the
// overlapping rows will not be stored. Caller must hold s.mu.
func (s *Store) checkOverlap(info *FileInfo, b *batch) {
	// After a gap the mirror no longer lines up with client indexes.
	if info.Rows != info.Next {
		return
	}

	if len(b.Header) > 0 {
		stored, err := logfile.ReadHeader(info.Path)
		if err != nil {
			s.logger.Printf("WARNING: %s: cannot verify re-sent rows: %v", info.Path, err)
			return
		}
		if header := strings.Join(b.Header, row.Delimiter); header != stored {
			s.logger.Printf("WARNING: %s: re-sent header %q differs from stored %q; client file was replaced, overlapping rows dropped",
				info.Path, header, stored)
			return
		}
	}

	n := min(info.Next, b.From+len(b.Rows)) - b.From
	stored, err := logfile.ReadRows(info.Path, b.From)
	if err != nil {
		s.logger.Printf("WARNING: %s: cannot verify re-sent rows: %v", info.Path, err)
		return
	}
	for i := 0; i < n && i < len(stored); i++ {
		if stored[i] != strings.Join(b.Rows[i], row.Delimiter) {
			s.logger.Printf("WARNING: %s: re-sent row %d differs from the stored row; client file was replaced, overlapping rows dropped",
				info.Path, b.From+i)
			return
		}
	}
}

// Files returns the files seen since startup, sorted by instance and path.
func (s *Store) Files() []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FileInfo, 0, len(s.files))
	for _, info := range s.files {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstanceID != out[j].InstanceID {
			return out[i].InstanceID < out[j].InstanceID
		}
		return out[i].File < out[j].File
	})
	return out
}

// lookup returns the entry of a client file, counting the rows already on
// disk the first time it is seen. Caller must hold s.mu.
func (s *Store) lookup(instanceID, file string) (*FileInfo, error) {
	key := instanceID + "\x00" + file
	if info, ok := s.files[key]; ok {
		return info, nil
	}

	path, err := s.target(instanceID, file)
	if err != nil {
		return nil, err
	}
	rows, err := logfile.CountRows(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		InstanceID: instanceID,
		File:       file,
		Path:       path,
		Rows:       rows,
		Next:       rows,
	}
	s.files[key] = info
	return info, nil
}

// target maps a client file to its location under the store root.
func (s *Store) target(instanceID, file string) (string, error) {
	inst := sanitizeSegment(instanceID)
	if inst == "" {
		inst = "anonymous"
	}

	rel := filepath.ToSlash(file)
	if vol := filepath.VolumeName(file); vol != "" {
		rel = strings.TrimPrefix(rel, filepath.ToSlash(vol))
	}
	rel = filepath.Clean("/" + rel)[1:]
	if rel == "" || rel == "." {
		return "", fmt.Errorf("invalid file name %q", file)
	}
	return filepath.Join(s.dir, inst, filepath.FromSlash(rel)), nil
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.Trim(s, "."))
}
