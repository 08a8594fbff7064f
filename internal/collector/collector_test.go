package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/valyala/fastjson"

	"github.com/rcsvlog/rcsv/internal/logger"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/remote"
	"github.com/rcsvlog/rcsv/internal/row"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startServer runs a collector on a random port until the test ends.
func startServer(t *testing.T) *Server {
	t.Helper()

	server, err := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Dir:    t.TempDir(),
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})
	return server
}

func testBatch(from int, values ...int) *remote.Batch {
	b := &remote.Batch{
		File:   "/home/user/Documents/session.csv",
		Header: []string{"Timestamp", "n"},
		From:   from,
	}
	for _, v := range values {
		b.Rows = append(b.Rows, row.Values("2019-03-14 10:00:00.000", v))
	}
	return b
}

func TestParseBatch(t *testing.T) {
	var p fastjson.Parser
	data := `{"file":"/a.csv","header":["Timestamp","x"],"from":2,
		"rows":[["t",1.50,true,null,"s"],[1]],"instance_id":"inst"}`

	b, err := parseBatch(&p, []byte(data))
	if err != nil {
		t.Fatalf("parseBatch() failed: %v", err)
	}
	if b.File != "/a.csv" || b.From != 2 || b.InstanceID != "inst" {
		t.Errorf("batch = %+v", b)
	}
	if got, want := strings.Join(b.Rows[0], "|"), "t|1.50|true||s"; got != want {
		t.Errorf("row 0 = %q, want %q", got, want)
	}
	if len(b.Rows) != 2 || b.Rows[1][0] != "1" {
		t.Errorf("rows = %v", b.Rows)
	}
}

func TestParseBatch_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"not object", `[1,2]`},
		{"no file", `{"from":0,"rows":[]}`},
		{"negative from", `{"file":"a","from":-1}`},
		{"row not array", `{"file":"a","rows":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p fastjson.Parser
			if _, err := parseBatch(&p, []byte(tt.data)); err == nil {
				t.Error("parseBatch() should fail")
			}
		})
	}
}

func TestStore_DropsResentRows(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, quietLogger())

	b := &batch{File: "/data/a.csv", Header: []string{"n"}, InstanceID: "inst",
		Rows: [][]string{{"1"}, {"2"}, {"3"}}}
	res, err := store.Accept(b)
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if res.Accepted != 3 || res.Total != 3 {
		t.Errorf("first Accept() = %+v", res)
	}

	// The ack was lost: the client re-sends from 0 with one more row.
	b.Rows = append(b.Rows, []string{"4"})
	res, err = store.Accept(b)
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if res.Accepted != 1 || res.Duplicates != 3 || res.Total != 4 {
		t.Errorf("re-send Accept() = %+v", res)
	}

	res, err = store.Accept(&batch{File: "/data/a.csv", InstanceID: "inst", From: 2,
		Rows: [][]string{{"3"}, {"4"}}})
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if res.Accepted != 0 || res.Duplicates != 2 {
		t.Errorf("duplicate Accept() = %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(dir, "inst", "data", "a.csv"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got, want := string(data), "n\n1\n2\n3\n4\n"; got != want {
		t.Errorf("file = %q, want %q", got, want)
	}

	// A restarted store counts what is already on disk.
	restarted := NewStore(dir, quietLogger())
	res, err = restarted.Accept(&batch{File: "/data/a.csv", InstanceID: "inst", From: 3,
		Rows: [][]string{{"4"}, {"5"}}})
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if res.Accepted != 1 || res.Total != 5 {
		t.Errorf("Accept() after restart = %+v", res)
	}
}

func TestStore_WarnsWhenResentRowsDiffer(t *testing.T) {
	var diag bytes.Buffer
	store := NewStore(t.TempDir(), log.New(&diag, "", 0))

	first := &batch{File: "/data/a.csv", Header: []string{"n"}, InstanceID: "inst",
		Rows: [][]string{{"1"}, {"2"}}}
	if _, err := store.Accept(first); err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}

	// An identical re-send is a plain duplicate.
	if _, err := store.Accept(first); err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if strings.Contains(diag.String(), "WARNING") {
		t.Errorf("identical re-send logged %q", diag.String())
	}

	// The client deleted and recreated the file: same indexes, new content.
	replaced := &batch{File: "/data/a.csv", Header: []string{"n"}, InstanceID: "inst",
		Rows: [][]string{{"9"}, {"8"}, {"7"}}}
	res, err := store.Accept(replaced)
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if res.Accepted != 1 || res.Duplicates != 2 {
		t.Errorf("Accept() = %+v", res)
	}
	if !strings.Contains(diag.String(), "WARNING") || !strings.Contains(diag.String(), "row 0 differs") {
		t.Errorf("expected a warning about row 0, got %q", diag.String())
	}

	diag.Reset()
	renamed := &batch{File: "/data/a.csv", Header: []string{"m"}, InstanceID: "inst",
		Rows: [][]string{{"9"}}}
	if _, err := store.Accept(renamed); err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	if !strings.Contains(diag.String(), "header") {
		t.Errorf("expected a header warning, got %q", diag.String())
	}
}

// TestLoggerMirrorMatchesLocal logs cells that are not in canonical form,
// live and recovered from disk, and requires the collected copy to be
// byte-identical to the local file.
func TestLoggerMirrorMatchesLocal(t *testing.T) {
	server := startServer(t)
	url := "http://" + server.GetAddr() + "/api/rows"
	dir := t.TempDir()
	ctx := context.Background()

	newLogger := func(serverURL string) (*logger.Logger, *manager.Manager) {
		t.Helper()
		mgr := manager.Open(manager.NewCSVStore(filepath.Join(dir, manager.DefaultFilename)), quietLogger())
		opts := logger.DefaultOptions()
		opts.Filename = "mixed.csv"
		opts.DataDir = dir
		opts.Header = []string{"id", "value", "raw", "big"}
		opts.Precision = 2
		opts.Console = io.Discard
		opts.ServerURL = serverURL
		opts.Remote = remote.Options{InstanceID: "mirror"}
		opts.Manager = mgr
		opts.Logger = quietLogger()
		opts.Clock = func() time.Time { return time.Date(2019, 3, 14, 10, 0, 0, 250_000_000, time.UTC) }
		l, err := logger.New(opts)
		if err != nil {
			t.Fatalf("logger.New() failed: %v", err)
		}
		return l, mgr
	}

	// Offline first, so these rows reach the server through recovery.
	offline, mgr := newLogger("")
	if err := offline.Log(ctx, "007", 1.5, "1e3", uint64(18446744073709551615)); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	_ = offline.Close()
	_ = mgr.Close()

	online, mgr := newLogger(url)
	defer mgr.Close()
	defer online.Close()
	if err := online.Log(ctx, "0042", 2.0, "-0", 3); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if err := online.Log(ctx, "x", 0.125, "1.50", true); err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if _, err := online.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	local, err := os.ReadFile(online.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(local), ",007,1.50,1e3,18446744073709551615\n") {
		t.Fatalf("local file = %q", local)
	}

	files := server.Store().Files()
	if len(files) != 1 {
		t.Fatalf("collector has %d files, want 1", len(files))
	}
	mirror, err := os.ReadFile(files[0].Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(mirror) != string(local) {
		t.Errorf("collected copy differs from local file\nlocal:  %q\nmirror: %q", local, mirror)
	}
}

func TestStore_Target(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, quietLogger())

	tests := []struct {
		instance string
		file     string
		want     string
	}{
		{"inst", "/home/u/a.csv", filepath.Join(dir, "inst", "home", "u", "a.csv")},
		{"", "b.csv", filepath.Join(dir, "anonymous", "b.csv")},
		{"../x", "../../etc/passwd", filepath.Join(dir, "_x", "etc", "passwd")},
	}

	for _, tt := range tests {
		got, err := store.target(tt.instance, tt.file)
		if err != nil {
			t.Errorf("target(%q, %q) failed: %v", tt.instance, tt.file, err)
			continue
		}
		if got != tt.want {
			t.Errorf("target(%q, %q) = %q, want %q", tt.instance, tt.file, got, tt.want)
		}
	}

	if _, err := store.target("inst", "/"); err == nil {
		t.Error("target() should reject an empty file name")
	}
}

func TestHTTPIngest(t *testing.T) {
	server := startServer(t)
	url := "http://" + server.GetAddr() + "/api/rows"

	for i, compression := range []string{"", "gzip", "zstd"} {
		t.Run("compression="+compression, func(t *testing.T) {
			sender, err := remote.New(url, remote.Options{Compression: compression, InstanceID: "inst-" + compression})
			if err != nil {
				t.Fatalf("remote.New() failed: %v", err)
			}
			defer sender.Close()

			if err := sender.Send(context.Background(), testBatch(0, i, i+1)); err != nil {
				t.Fatalf("Send() failed: %v", err)
			}
		})
	}

	resp, err := http.Get("http://" + server.GetAddr() + "/api/files")
	if err != nil {
		t.Fatalf("GET /api/files failed: %v", err)
	}
	defer resp.Body.Close()

	var files []FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		t.Fatalf("Failed to decode files: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %+v, want 3 entries", files)
	}
	for _, f := range files {
		if f.Rows != 2 || f.Next != 2 {
			t.Errorf("file %s/%s has %d rows, next %d", f.InstanceID, f.File, f.Rows, f.Next)
		}
	}
}

func TestHTTPIngest_RejectsBadBody(t *testing.T) {
	server := startServer(t)

	resp, err := http.Post("http://"+server.GetAddr()+"/api/rows", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var ack remote.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("Failed to decode ack: %v", err)
	}
	if ack.OK || ack.Error == "" {
		t.Errorf("ack = %+v", ack)
	}

	sender, err := remote.New("http://"+server.GetAddr()+"/api/rows", remote.Options{})
	if err != nil {
		t.Fatalf("remote.New() failed: %v", err)
	}
	defer sender.Close()
	if err := sender.Send(context.Background(), &remote.Batch{}); !errors.Is(err, remote.ErrRejected) {
		t.Errorf("Send() of a batch without file = %v, want ErrRejected", err)
	}
}

func TestWSIngest(t *testing.T) {
	server := startServer(t)

	sender, err := remote.New("ws://"+server.GetAddr()+"/api/rows", remote.Options{InstanceID: "ws"})
	if err != nil {
		t.Fatalf("remote.New() failed: %v", err)
	}
	defer sender.Close()

	ctx := context.Background()
	if err := sender.Send(ctx, testBatch(0, 1, 2)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	// Same connection, overlapping re-send.
	if err := sender.Send(ctx, testBatch(1, 2, 3)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	files := server.Store().Files()
	if len(files) != 1 || files[0].Rows != 3 {
		t.Errorf("files = %+v, want one file with 3 rows", files)
	}
}

func TestLiveFeed(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	readMessage := func() Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return msg
	}

	if msg := readMessage(); msg.Type != MessageTypeHello {
		t.Fatalf("first message type = %s, want %s", msg.Type, MessageTypeHello)
	}
	for deadline := time.Now().Add(2 * time.Second); server.ClientCount() != 1; {
		if time.Now().After(deadline) {
			t.Fatal("viewer was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sender, err := remote.New("http://"+server.GetAddr()+"/api/rows", remote.Options{InstanceID: "live"})
	if err != nil {
		t.Fatalf("remote.New() failed: %v", err)
	}
	defer sender.Close()
	if err := sender.Send(ctx, testBatch(0, 7)); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	msg := readMessage()
	if msg.Type != MessageTypeRows {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeRows)
	}
	var data RowsData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal rows: %v", err)
	}
	if data.InstanceID != "live" || len(data.Rows) != 1 || data.Rows[0][1] != "7" {
		t.Errorf("rows data = %+v", data)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}
