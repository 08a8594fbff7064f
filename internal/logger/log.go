package logger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcsvlog/rcsv/internal/logfile"
	"github.com/rcsvlog/rcsv/internal/row"
)

// Log appends one row built from values. See LogRow.
func (l *Logger) Log(ctx context.Context, values ...any) error {
	return l.LogRow(ctx, row.Values(values...))
}

// LogRow appends data as one row, then tries to push every buffered row to
// the server.
//
// The returned error reports local failures only (bad format, unwritable
// file); the row is then not logged. Remote failures are logged as
// diagnostics and the row stays buffered for the next call.
func (l *Logger) LogRow(ctx context.Context, data row.Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.filename == "" {
		l.logger.Printf("ERROR: cannot log: %v", ErrNoFilename)
		return ErrNoFilename
	}

	if !l.writing {
		path := l.absolutePath(l.filename)
		if err := l.recover(path); err != nil {
			l.logger.Printf("WARNING: failed to reconcile %s: %v", path, err)
		}
		l.path = path
		l.writing = true
	}

	b := l.builder()
	cells, err := b.Cells(data)
	if err != nil {
		l.logger.Printf("ERROR: cannot build row for %s: %v", l.path, err)
		return err
	}
	line := strings.Join(cells, row.Delimiter)

	if err := l.updateLocal(b.BuildHeaderString(), line); err != nil {
		l.logger.Printf("ERROR: cannot write to %s: %v", l.path, err)
		return err
	}
	if l.toConsole {
		fmt.Fprintln(l.console, line)
	}

	if l.remoteSender() != nil {
		l.updates[l.path] = append(l.updates[l.path], row.Texts(cells))
		if err := l.updateRemote(ctx); err != nil {
			l.logger.Printf("WARNING: remote update incomplete: %v", err)
		}
	}

	if err := l.manager.Save(); err != nil {
		l.logger.Printf("ERROR: %v", err)
	}
	return nil
}

// updateLocal appends line to the active file and records it in the
// manager. Caller must hold l.mu.
func (l *Logger) updateLocal(header, line string) error {
	wroteHeader, err := logfile.Append(l.path, header, line)
	if err != nil {
		return err
	}
	if wroteHeader {
		l.headers[l.path] = row.SplitLine(header)
	} else if _, ok := l.headers[l.path]; !ok {
		l.headers[l.path] = l.fileHeader(l.path, header)
	}
	l.manager.IncLocal(l.path)
	return nil
}

// fileHeader returns the header cells stored in path, or fallback when the
// file has none.
func (l *Logger) fileHeader(path, fallback string) []string {
	h, err := logfile.ReadHeader(path)
	if err != nil || h == "" {
		return row.SplitLine(fallback)
	}
	return row.SplitLine(h)
}
