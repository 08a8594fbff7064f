// Package logger appends rows to a local CSV file and mirrors them to a
// remote collection server.
//
// # Overview
//
// A Logger owns one active log file at a time. Every call to Log:
//
//  1. builds the row line (optional timestamp first)
//  2. appends it to the file, writing the header if the file is new or empty
//  3. bumps the file's local count in the log manager
//  4. buffers the row and tries to push every buffered row to the server
//  5. advances the remote count for whatever the server acknowledged
//  6. persists the log manager
//
// Remote failures never fail Log: the rows stay buffered and go out with the
// next call. A batch that reached the server but whose acknowledgement was
// lost is sent again, so the server sees rows at least once; every batch
// carries the index of its first row so the server can drop repeats.
//
// # Reconciliation
//
// The buffer lives in memory only. When a file is first used (or on
// Recover), the logger compares the manager counts with the file on disk and
// rebuilds the buffer from the rows between the remote and the local count.
// The file wins over the manager: if a crash happened between an append and
// the manager save, the local count is corrected from the file.
//
// # Settings
//
// The header and the timestamp setting are frozen by the first Log call and
// stay frozen until Reset. Precision, millisecond display, console mirroring
// and the server URL can change at any time.
//
// The Logger serializes its own calls with a mutex. It does not coordinate
// with other processes writing the same file.
package logger
