package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Header names used by the HTTP transport.
const (
	HeaderInstanceID = "X-Instance-ID"
	HeaderRowFrom    = "X-Row-From"
)

// HTTPSender posts batches as JSON.
type HTTPSender struct {
	url         string
	client      *http.Client
	compression string
	instanceID  string
	encoder     *zstd.Encoder
}

// NewHTTPSender returns a sender posting to url.
func NewHTTPSender(url string, opts Options) (*HTTPSender, error) {
	s := &HTTPSender{
		url:         url,
		client:      &http.Client{Timeout: opts.Timeout},
		compression: strings.ToLower(opts.Compression),
		instanceID:  opts.InstanceID,
	}
	switch s.compression {
	case "", "none":
		s.compression = ""
	case "gzip":
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		s.encoder = enc
	default:
		return nil, fmt.Errorf("unsupported compression %q (want gzip or zstd)", opts.Compression)
	}
	return s, nil
}

// Send implements Sender.Send. Any 2xx status is an acknowledgement.
func (s *HTTPSender) Send(ctx context.Context, b *Batch) error {
	if b.InstanceID == "" {
		b.InstanceID = s.instanceID
	}
	if b.SentAt.IsZero() {
		b.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	body, err := s.compress(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.compression != "" {
		req.Header.Set("Content-Encoding", s.compression)
	}
	if b.InstanceID != "" {
		req.Header.Set(HeaderInstanceID, b.InstanceID)
	}
	req.Header.Set(HeaderRowFrom, fmt.Sprint(b.From))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close implements Sender.Close.
func (s *HTTPSender) Close() error {
	s.client.CloseIdleConnections()
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}

func (s *HTTPSender) compress(payload []byte) ([]byte, error) {
	switch s.compression {
	case "gzip":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to gzip batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to gzip batch: %w", err)
		}
		return buf.Bytes(), nil
	case "zstd":
		return s.encoder.EncodeAll(payload, nil), nil
	default:
		return payload, nil
	}
}
