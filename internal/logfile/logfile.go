// Package logfile appends rows to local CSV log files and reads them back
// by byte offset.
//
// Files are plain text: one header line followed by one data row per line.
// Writes go through O_APPEND with no fsync contract; a crash mid-write can
// leave a partial last line, which ReadFrom still returns.
package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// IsEmpty reports whether the file is missing or has zero length.
func IsEmpty(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}
	return info.Size() == 0, nil
}

// Append writes line to the end of path, preceded by header when the file is
// missing or empty. Both lines get a trailing newline. It returns whether the
// header was written.
func Append(path, header, line string) (bool, error) {
	return AppendLines(path, header, []string{line})
}

// AppendLines is Append for several rows in one write.
func AppendLines(path, header string, lines []string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create log directory: %w", err)
	}

	// #nosec G304 - path comes from logger configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}

	w := bufio.NewWriter(f)
	wroteHeader := false
	if info.Size() == 0 {
		if _, err := w.WriteString(header + "\n"); err != nil {
			return false, fmt.Errorf("failed to write header: %w", err)
		}
		wroteHeader = true
	}
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return wroteHeader, fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return wroteHeader, fmt.Errorf("failed to flush log file: %w", err)
	}
	return wroteHeader, nil
}

// ReadHeader returns the first line of path without its newline. A missing
// file yields an empty header.
func ReadHeader(path string) (string, error) {
	// #nosec G304 - path comes from logger configuration
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read header: %w", err)
	}
	return trimNewline(line), nil
}

// CountRows returns the number of data rows in path, excluding the header.
// A missing or empty file has zero rows.
func CountRows(path string) (int, error) {
	lines, err := countLines(path)
	if err != nil {
		return 0, err
	}
	if lines == 0 {
		return 0, nil
	}
	return lines - 1, nil
}

// RowOffset returns the byte offset at which data row n (0-based) starts:
// just past the header and the first n rows. If the file holds fewer rows,
// the offset of the end of the file is returned.
func RowOffset(path string, n int) (int64, error) {
	// #nosec G304 - path comes from logger configuration
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for skipped := 0; skipped < n+1; skipped++ {
		line, err := r.ReadString('\n')
		offset += int64(len(line))
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to scan log file: %w", err)
		}
	}
	return offset, nil
}

// ReadFrom returns every line of path starting at byte offset from, without
// newlines. A trailing line lacking its newline is included.
func ReadFrom(path string, from int64) ([]string, error) {
	// #nosec G304 - path comes from logger configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek log file: %w", err)
	}

	var lines []string
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			lines = append(lines, trimNewline(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log file: %w", err)
		}
	}
	return lines, nil
}

// ReadRows returns the data rows of path after skipping the first skip rows.
func ReadRows(path string, skip int) ([]string, error) {
	offset, err := RowOffset(path, skip)
	if err != nil {
		return nil, err
	}
	return ReadFrom(path, offset)
}

// WriteLines replaces the content of path with lines. The data is written to
// a temporary file in the same directory and renamed over path.
func WriteLines(path string, lines []string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	written := 0
	for _, line := range lines {
		n, err := w.WriteString(line + "\n")
		written += n
		if err != nil {
			_ = tmp.Close()
			return written, fmt.Errorf("failed to write line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return written, fmt.Errorf("failed to flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return written, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return written, nil
}

func countLines(path string) (int, error) {
	// #nosec G304 - path comes from logger configuration
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	count := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			count++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to count lines: %w", err)
		}
	}
	return count, nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}
