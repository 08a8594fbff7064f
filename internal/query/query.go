// Package query reads a log file back and selects rows by time range and
// CEL filter.
package query

import (
	"fmt"
	"time"

	"github.com/rcsvlog/rcsv/internal/logfile"
	"github.com/rcsvlog/rcsv/internal/row"
)

// Record is one data row of a log file.
type Record struct {
	// Index is the 0-based data row index, the same index used for remote
	// sync.
	Index int
	Line  string
	Cells []string
	// Fields maps header names to typed cell values.
	Fields map[string]any

	Time    time.Time
	HasTime bool
}

// Options selects rows.
type Options struct {
	// Filter is a CEL expression; see Filter.
	Filter string

	// Since and Until bound the row timestamp, inclusive. See ParseTime.
	Since string
	Until string

	// From skips data rows before this index.
	From int

	// Limit caps the result; with Tail the last rows are kept.
	Limit int
	Tail  bool

	// Now anchors relative times (default: time.Now()).
	Now time.Time
}

// Result is the header and the selected rows.
type Result struct {
	Header  []string
	Records []Record
	// Scanned is the number of rows examined.
	Scanned int
}

// Run reads path and returns the rows selected by opts.
func Run(path string, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	filter, err := CompileFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	var since, until time.Time
	if opts.Since != "" {
		if since, err = ParseTime(opts.Since, now); err != nil {
			return nil, err
		}
	}
	if opts.Until != "" {
		if until, err = ParseTime(opts.Until, now); err != nil {
			return nil, err
		}
	}

	headerLine, err := logfile.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	header := row.SplitLine(headerLine)
	timed := len(header) > 0 && header[0] == row.TimestampHeader
	if (!since.IsZero() || !until.IsZero()) && !timed {
		return nil, fmt.Errorf("%s has no %s column", path, row.TimestampHeader)
	}

	from := opts.From
	if from < 0 {
		from = 0
	}
	lines, err := logfile.ReadRows(path, from)
	if err != nil {
		return nil, err
	}

	res := &Result{Header: header}
	for i, line := range lines {
		rec := newRecord(from+i, line, header, timed, now.Location())
		res.Scanned++

		if !since.IsZero() && (!rec.HasTime || rec.Time.Before(since)) {
			continue
		}
		if !until.IsZero() && (!rec.HasTime || rec.Time.After(until)) {
			continue
		}
		if !filter.Match(&rec, now) {
			continue
		}

		res.Records = append(res.Records, rec)
		if opts.Limit > 0 && !opts.Tail && len(res.Records) == opts.Limit {
			break
		}
	}

	if opts.Limit > 0 && opts.Tail && len(res.Records) > opts.Limit {
		res.Records = res.Records[len(res.Records)-opts.Limit:]
	}
	return res, nil
}

func newRecord(index int, line string, header []string, timed bool, loc *time.Location) Record {
	cells := row.SplitLine(line)
	rec := Record{
		Index:  index,
		Line:   line,
		Cells:  cells,
		Fields: make(map[string]any, len(cells)),
	}

	for i, cell := range cells {
		name := fmt.Sprintf("col%d", i)
		if i < len(header) && header[i] != "" {
			name = header[i]
		}
		if timed && i == 0 {
			rec.Fields[name] = cell
			continue
		}
		rec.Fields[name] = row.Parse(cell).Any()
	}

	if timed && len(cells) > 0 {
		if t, err := row.ParseTimestamp(cells[0], loc); err == nil {
			rec.Time = t
			rec.HasTime = true
		}
	}
	return rec
}
