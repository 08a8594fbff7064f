package row

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Delimiter separates cells on a line.
	Delimiter = ","

	// TimestampHeader is the header field written before the configured
	// fields when timestamps are enabled.
	TimestampHeader = "Timestamp"

	// TimestampLayout is the timestamp format with milliseconds.
	TimestampLayout = "2006-01-02 15:04:05.000"

	// TimestampLayoutSeconds is the timestamp format without milliseconds.
	TimestampLayoutSeconds = "2006-01-02 15:04:05"
)

// ErrFormat is returned when a line cannot be built.
var ErrFormat = errors.New("format error")

// FormatError describes why a line could not be built.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s", e.Reason)
}

// Is reports ErrFormat as the sentinel for every FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Builder renders header and data lines.
type Builder struct {
	// Header is the list of field names, excluding the timestamp.
	Header []string

	// LogTime prefixes every line with a timestamp column.
	LogTime bool

	// LogMillis includes milliseconds in the timestamp.
	LogMillis bool

	// Precision is the number of decimals used for floats.
	Precision int

	// Clock supplies the current time. A nil clock with LogTime enabled
	// makes BuildLogLine fail.
	Clock func() time.Time
}

// BuildHeaderString returns the header line, without a trailing newline.
func (b *Builder) BuildHeaderString() string {
	fields := make([]string, 0, len(b.Header)+1)
	if b.LogTime {
		fields = append(fields, TimestampHeader)
	}
	fields = append(fields, b.Header...)
	return strings.Join(fields, Delimiter)
}

// Cells renders values into the cells of one line, timestamp first when
// enabled.
func (b *Builder) Cells(values Row) ([]string, error) {
	cells := make([]string, 0, len(values)+1)
	if b.LogTime {
		ts, err := b.timestamp()
		if err != nil {
			return nil, err
		}
		cells = append(cells, ts)
	}
	for _, v := range values {
		cells = append(cells, v.Text(b.Precision))
	}
	return cells, nil
}

// BuildLogLine returns the data line for values, without a trailing newline.
func (b *Builder) BuildLogLine(values Row) (string, error) {
	cells, err := b.Cells(values)
	if err != nil {
		return "", err
	}
	return strings.Join(cells, Delimiter), nil
}

func (b *Builder) timestamp() (string, error) {
	if b.Clock == nil {
		return "", &FormatError{Reason: "time logging enabled but no clock available"}
	}
	now := b.Clock()
	if now.IsZero() {
		return "", &FormatError{Reason: "clock returned zero time"}
	}
	if b.LogMillis {
		return now.Format(TimestampLayout), nil
	}
	return now.Format(TimestampLayoutSeconds), nil
}

// SplitLine splits a stored line into its cells.
func SplitLine(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}
	return strings.Split(line, Delimiter)
}

// ParseTimestamp parses a timestamp cell written by a Builder in the given
// location.
func ParseTimestamp(cell string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(TimestampLayout, cell, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(TimestampLayoutSeconds, cell, loc)
}
