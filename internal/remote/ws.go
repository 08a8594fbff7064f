package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// WSSender writes batches over a WebSocket and waits for an Ack per batch.
// The connection is dialed lazily and redialed after any failure.
type WSSender struct {
	url        string
	timeout    time.Duration
	instanceID string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSSender returns a sender for the ws:// or wss:// url.
func NewWSSender(url string, opts Options) *WSSender {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &WSSender{url: url, timeout: opts.Timeout, instanceID: opts.InstanceID}
}

// Send implements Sender.Send.
func (s *WSSender) Send(ctx context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.InstanceID == "" {
		b.InstanceID = s.instanceID
	}
	if b.SentAt.IsZero() {
		b.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.conn == nil {
		conn, _, err := websocket.Dial(ctx, s.url, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", s.url, err)
		}
		s.conn = conn
	}

	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.drop()
		return fmt.Errorf("failed to send batch: %w", err)
	}

	_, reply, err := s.conn.Read(ctx)
	if err != nil {
		s.drop()
		return fmt.Errorf("failed to read ack: %w", err)
	}

	var ack Ack
	if err := json.Unmarshal(reply, &ack); err != nil {
		s.drop()
		return fmt.Errorf("invalid ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	return nil
}

// Close implements Sender.Close.
func (s *WSSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn = nil
	return err
}

func (s *WSSender) drop() {
	if s.conn != nil {
		_ = s.conn.CloseNow()
		s.conn = nil
	}
}
