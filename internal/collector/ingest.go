package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"

	"github.com/rcsvlog/rcsv/internal/remote"
)

// maxBodyBytes bounds one decoded batch.
const maxBodyBytes = 32 << 20

// batch is an incoming push with every cell already rendered as text.
type batch struct {
	File       string
	Header     []string
	From       int
	Rows       [][]string
	InstanceID string
}

// RowsData is the payload of a MessageTypeRows broadcast.
type RowsData struct {
	InstanceID string     `json:"instance_id"`
	File       string     `json:"file"`
	From       int        `json:"from"`
	Header     []string   `json:"header,omitempty"`
	Rows       [][]string `json:"rows"`
}

// parseBatch decodes the JSON form of remote.Batch. Numbers keep the exact
// text the client sent.
func parseBatch(p *fastjson.Parser, data []byte) (*batch, error) {
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, errors.New("batch must be a JSON object")
	}

	b := &batch{
		File:       string(v.GetStringBytes("file")),
		From:       v.GetInt("from"),
		InstanceID: string(v.GetStringBytes("instance_id")),
	}
	if b.File == "" {
		return nil, errors.New("batch has no file")
	}
	if b.From < 0 {
		return nil, fmt.Errorf("batch has negative from %d", b.From)
	}

	for _, h := range v.GetArray("header") {
		b.Header = append(b.Header, cellText(h))
	}
	for i, r := range v.GetArray("rows") {
		if r.Type() != fastjson.TypeArray {
			return nil, fmt.Errorf("row %d is not an array", i)
		}
		cells := r.GetArray()
		rendered := make([]string, len(cells))
		for j, c := range cells {
			rendered[j] = cellText(c)
		}
		b.Rows = append(b.Rows, rendered)
	}
	return b, nil
}

func cellText(v *fastjson.Value) string {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeTrue:
		return "true"
	case fastjson.TypeFalse:
		return "false"
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}

// readBody returns the request body, decompressed per Content-Encoding.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}

	switch strings.ToLower(r.Header.Get("Content-Encoding")) {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		if len(out) > maxBodyBytes {
			return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
		}
		return out, nil
	case "zstd":
		out, err := s.zstd.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd body: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding %q", r.Header.Get("Content-Encoding"))
	}
}

// ingest parses one batch, stores it and announces the new rows.
func (s *Server) ingest(data []byte, fallbackInstance string) remote.Ack {
	p := s.parser.Get()
	b, err := parseBatch(p, data)
	s.parser.Put(p)
	if err != nil {
		return remote.Ack{Error: err.Error()}
	}
	if b.InstanceID == "" {
		b.InstanceID = fallbackInstance
	}

	res, err := s.store.Accept(b)
	if err != nil {
		s.logger.Printf("Failed to store batch for %s: %v", b.File, err)
		return remote.Ack{Error: err.Error()}
	}

	if res.Accepted > 0 {
		s.logger.Printf("Stored %d rows of %s (%s)", res.Accepted, b.File, b.InstanceID)
		s.broadcastRows(b, res)
	}
	return remote.Ack{OK: true, Accepted: res.Accepted, Total: res.Total}
}

func (s *Server) broadcastRows(b *batch, res Result) {
	data, err := json.Marshal(RowsData{
		InstanceID: b.InstanceID,
		File:       b.File,
		From:       b.From + res.Duplicates,
		Header:     b.Header,
		Rows:       b.Rows[res.Duplicates:],
	})
	if err != nil {
		s.logger.Printf("Failed to marshal rows: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeRows, Timestamp: time.Now(), Data: data})
}

// handleIngest accepts a batch posted over HTTP.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(r)
	if err != nil {
		writeAck(w, http.StatusBadRequest, remote.Ack{Error: err.Error()})
		return
	}

	ack := s.ingest(body, r.Header.Get(remote.HeaderInstanceID))
	status := http.StatusOK
	if !ack.OK {
		status = http.StatusBadRequest
	}
	writeAck(w, status, ack)
}

// handleIngestWS accepts batches over a WebSocket, answering each with an
// Ack message.
func (s *Server) handleIngestWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxBodyBytes)
	instance := r.Header.Get(remote.HeaderInstanceID)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}

		reply, err := json.Marshal(s.ingest(data, instance))
		if err != nil {
			s.logger.Printf("Failed to marshal ack: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		err = conn.Write(ctx, websocket.MessageText, reply)
		cancel()
		if err != nil {
			return
		}
	}
}

func writeAck(w http.ResponseWriter, status int, ack remote.Ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ack)
}
