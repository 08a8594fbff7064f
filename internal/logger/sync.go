package logger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcsvlog/rcsv/internal/logfile"
	"github.com/rcsvlog/rcsv/internal/remote"
	"github.com/rcsvlog/rcsv/internal/row"
)

// UpdateRemote pushes every buffered row and persists the manager. It
// returns the last push error, if any; rows that failed stay buffered.
func (l *Logger) UpdateRemote(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.updateRemote(ctx)
	if serr := l.manager.Save(); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// updateRemote sends the buffer of each file as one or more batches.
// Caller must hold l.mu.
func (l *Logger) updateRemote(ctx context.Context) error {
	sender := l.remoteSender()
	if sender == nil {
		return nil
	}

	var lastErr error
	for _, path := range sortedKeys(l.updates) {
		if _, err := l.pushFile(ctx, sender, path); err != nil {
			l.logger.Printf("WARNING: failed to sync %s: %v", path, err)
			lastErr = err
		}
	}
	return lastErr
}

// pushFile sends the buffered rows of path and returns how many the server
// acknowledged. Caller must hold l.mu.
func (l *Logger) pushFile(ctx context.Context, sender remote.Sender, path string) (int, error) {
	c, _ := l.manager.Get(path)

	// The buffer must cover exactly the rows between the remote and the
	// local count; otherwise the batch index would be wrong.
	if len(l.updates[path]) != c.Pending() {
		if err := l.recover(path); err != nil {
			return 0, err
		}
		c, _ = l.manager.Get(path)
	}

	sent := 0
	for len(l.updates[path]) > 0 {
		rows := l.updates[path]
		if l.maxBatchRows > 0 && len(rows) > l.maxBatchRows {
			rows = rows[:l.maxBatchRows]
		}

		batch := &remote.Batch{
			File:   path,
			Header: l.headers[path],
			From:   c.Remote,
			Rows:   rows,
		}
		if err := sender.Send(ctx, batch); err != nil {
			return sent, err
		}

		c = l.manager.AdvanceRemote(path, len(rows))
		l.updates[path] = l.updates[path][len(rows):]
		sent += len(rows)
	}
	delete(l.updates, path)
	return sent, nil
}

// Recover rebuilds the buffer of path (resolved like the filename) from the
// file on disk. See the package documentation.
func (l *Logger) Recover(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.recover(l.absolutePath(path)); err != nil {
		return err
	}
	return l.manager.Save()
}

// recover reconciles the manager entry of path with the file and reloads
// the unsynced rows. Caller must hold l.mu.
func (l *Logger) recover(path string) error {
	rows, err := logfile.CountRows(path)
	if err != nil {
		return err
	}

	c, tracked := l.manager.Get(path)
	switch {
	case !tracked && rows == 0:
		delete(l.updates, path)
		return nil
	case !tracked:
		l.logger.Printf("Tracking existing file %s (%d rows)", path, rows)
		c = l.manager.Track(path, rows)
	case c.Local != rows:
		l.logger.Printf("WARNING: manager counted %d rows for %s, file has %d; using file", c.Local, path, rows)
		c = l.manager.Track(path, rows)
	}

	if h, err := logfile.ReadHeader(path); err == nil && h != "" {
		l.headers[path] = row.SplitLine(h)
	}

	if c.Pending() == 0 || l.remoteSender() == nil {
		delete(l.updates, path)
		return nil
	}

	lines, err := logfile.ReadRows(path, c.Remote)
	if err != nil {
		return fmt.Errorf("failed to read unsynced rows: %w", err)
	}
	if len(lines) > c.Pending() {
		lines = lines[:c.Pending()]
	}

	pending := make([]row.Row, 0, len(lines))
	for _, line := range lines {
		pending = append(pending, row.Texts(row.SplitLine(line)))
	}
	l.updates[path] = pending
	if len(pending) > 0 {
		l.logger.Printf("Recovered %d unsynced rows for %s", len(pending), path)
	}
	return nil
}

// Reload re-reads the manager from its store, picking up counts written by
// other processes.
func (l *Logger) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manager.Reload()
}

// SyncAll reconciles every tracked file with the disk and pushes whatever
// the server has not acknowledged yet.
func (l *Logger) SyncAll(ctx context.Context) (SyncReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report SyncReport
	sender := l.remoteSender()
	if sender == nil {
		return report, fmt.Errorf("no server URL configured")
	}

	var lastErr error
	for _, path := range l.manager.Paths() {
		if err := l.recover(path); err != nil {
			l.logger.Printf("WARNING: failed to reconcile %s: %v", path, err)
			report.Failed++
			lastErr = err
			continue
		}
		if len(l.updates[path]) == 0 {
			continue
		}

		report.Files++
		sent, err := l.pushFile(ctx, sender, path)
		report.RowsSent += sent
		if err != nil {
			l.logger.Printf("WARNING: failed to sync %s: %v", path, err)
			report.Failed++
			lastErr = err
		}
	}

	if err := l.manager.Save(); err != nil {
		return report, errors.Join(lastErr, err)
	}
	return report, lastErr
}
