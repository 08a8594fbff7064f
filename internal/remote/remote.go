// Package remote pushes pending log rows to a collection server.
//
// A push is one Batch: the rows of a single log file starting at the
// server-side row index From. The server acknowledges a batch as a whole;
// anything short of an acknowledgement is a failure and the caller keeps
// the rows for the next attempt. Delivery is therefore at-least-once and
// servers are expected to discard rows whose index they already hold.
//
// Two transports are provided and selected from the server URL scheme:
// http(s) posts the batch as JSON, ws(s) writes it over a WebSocket and
// waits for an Ack message.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rcsvlog/rcsv/internal/row"
)

// ErrRejected is returned when the server answers but does not acknowledge
// the batch.
var ErrRejected = errors.New("batch rejected by server")

// Batch is the wire form of one push.
type Batch struct {
	// File is the log file path as known to the client.
	File string `json:"file"`

	// Header is the header line fields, timestamp column included.
	Header []string `json:"header"`

	// From is the index of the first row in Rows, i.e. the remote count
	// before this push.
	From int `json:"from"`

	// Rows are the pending rows in file order.
	Rows []row.Row `json:"rows"`

	// InstanceID identifies the sending installation.
	InstanceID string `json:"instance_id,omitempty"`

	// SentAt is when the batch left the client.
	SentAt time.Time `json:"sent_at"`
}

// Ack is the acknowledgement a server returns for a batch.
type Ack struct {
	OK       bool   `json:"ok"`
	Accepted int    `json:"accepted"`
	Total    int    `json:"total"`
	Error    string `json:"error,omitempty"`
}

// Sender delivers batches to a server.
type Sender interface {
	// Send returns nil only when the server acknowledged every row of b.
	Send(ctx context.Context, b *Batch) error

	// Close releases transport resources.
	Close() error
}

// Options configures a Sender.
type Options struct {
	// Timeout bounds a single push (default: 10s).
	Timeout time.Duration

	// Compression is "", "gzip" or "zstd" (HTTP only).
	Compression string

	// InstanceID is sent with every batch.
	InstanceID string
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// New returns a Sender for serverURL chosen by its scheme.
func New(serverURL string, opts Options) (Sender, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPSender(u.String(), opts)
	case "ws", "wss":
		return NewWSSender(u.String(), opts), nil
	case "":
		return nil, fmt.Errorf("server URL %q has no scheme", serverURL)
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
}
