package manager

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble"
)

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "[test] ", 0)
}

func TestManager_Counts(t *testing.T) {
	m := Open(NewCSVStore(filepath.Join(t.TempDir(), DefaultFilename)), quietLogger(&bytes.Buffer{}))

	if _, ok := m.Get("/a.csv"); ok {
		t.Fatal("fresh manager should not track /a.csv")
	}

	m.IncLocal("/a.csv")
	m.IncLocal("/a.csv")
	m.IncLocal("/a.csv")
	if got := m.Pending("/a.csv"); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}

	c := m.AdvanceRemote("/a.csv", 2)
	if c.Remote != 2 {
		t.Errorf("Remote = %d, want 2", c.Remote)
	}

	// Never beyond local, never backwards.
	if c := m.SetRemote("/a.csv", 10); c.Remote != 3 {
		t.Errorf("SetRemote(10).Remote = %d, want 3", c.Remote)
	}
	if c := m.SetRemote("/a.csv", 1); c.Remote != 3 {
		t.Errorf("SetRemote(1).Remote = %d, want 3", c.Remote)
	}

	// Track lowers remote along with local.
	if c := m.Track("/a.csv", 2); c.Local != 2 || c.Remote != 2 {
		t.Errorf("Track(2) = %+v", c)
	}
	if c := m.Track("/a.csv", -5); c.Local != 0 || c.Remote != 0 {
		t.Errorf("Track(-5) = %+v", c)
	}

	m.Reset("/a.csv")
	if _, ok := m.Get("/a.csv"); ok {
		t.Error("Reset() should forget the entry")
	}
}

func TestCSVStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	m := Open(NewCSVStore(path), nil)
	m.Track("/logs/b.csv", 5)
	m.SetRemote("/logs/b.csv", 4)
	m.Track("/logs/a,weird.csv", 1)

	if err := m.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "/logs/a,weird.csv,1,0\n/logs/b.csv,5,4\n"
	if string(data) != want {
		t.Errorf("manager file = %q, want %q", data, want)
	}

	reopened := Open(NewCSVStore(path), nil)
	if !reflect.DeepEqual(reopened.Snapshot(), m.Snapshot()) {
		t.Errorf("reopened = %v, want %v", reopened.Snapshot(), m.Snapshot())
	}
	if got := reopened.Paths(); !reflect.DeepEqual(got, []string{"/logs/a,weird.csv", "/logs/b.csv"}) {
		t.Errorf("Paths() = %v", got)
	}
}

func TestCSVStore_MalformedTreatedAsEmpty(t *testing.T) {
	tests := []string{
		"garbage\n",
		"/a.csv,x,1\n",
		"/a.csv,1,-1\n",
		"/a.csv,1\n",
	}

	for _, content := range tests {
		path := filepath.Join(t.TempDir(), DefaultFilename)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		m := Open(NewCSVStore(path), quietLogger(&buf))
		if len(m.Paths()) != 0 {
			t.Errorf("content %q: expected empty manager, got %v", content, m.Paths())
		}
		if !strings.Contains(buf.String(), "starting fresh") {
			t.Errorf("content %q: expected a diagnostic, got %q", content, buf.String())
		}
	}
}

func TestCSVStore_ClampsRemote(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	if err := os.WriteFile(path, []byte("/a.csv,2,7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := Open(NewCSVStore(path), nil)
	c, ok := m.Get("/a.csv")
	if !ok || c.Local != 2 || c.Remote != 2 {
		t.Errorf("Get() = %+v, %v", c, ok)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "manager.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() failed: %v", err)
	}
	defer store.Close()

	testStoreRoundTrip(t, store)
}

func TestPebbleStore_RoundTrip(t *testing.T) {
	store, err := OpenPebbleStore(filepath.Join(t.TempDir(), "manager"))
	if err != nil {
		t.Fatalf("OpenPebbleStore() failed: %v", err)
	}
	defer store.Close()

	testStoreRoundTrip(t, store)
}

func TestPebbleStore_RejectsBadCounts(t *testing.T) {
	store, err := OpenPebbleStore(filepath.Join(t.TempDir(), "manager"))
	if err != nil {
		t.Fatalf("OpenPebbleStore() failed: %v", err)
	}
	defer store.Close()

	key := func(path string) []byte { return append(append([]byte{}, pebblePrefix...), path...) }

	if err := store.db.Set(key("/a.csv"), []byte("2,7"), pebble.Sync); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c := got["/a.csv"]; c.Local != 2 || c.Remote != 2 {
		t.Errorf("remote above local not clamped: %+v", c)
	}

	if err := store.db.Set(key("/b.csv"), []byte("-1,0"), pebble.Sync); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Errorf("Load() with negative count = %v, want error", err)
	}
}

func TestSQLiteStore_RejectsBadCounts(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "manager.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() failed: %v", err)
	}
	defer store.Close()

	if _, err := store.conn.Exec(`INSERT INTO log_manager (path, local, remote) VALUES ('/a.csv', 3, 9)`); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c := got["/a.csv"]; c.Local != 3 || c.Remote != 3 {
		t.Errorf("remote above local not clamped: %+v", c)
	}

	// Negative counts never reach the table.
	if _, err := store.conn.Exec(`INSERT INTO log_manager (path, local, remote) VALUES ('/b.csv', 1, -4)`); err == nil {
		t.Error("insert of a negative count should violate the schema")
	}
}

func TestCheckCounts(t *testing.T) {
	tests := []struct {
		local, remote int
		want          Counts
		wantErr       bool
	}{
		{3, 1, Counts{Local: 3, Remote: 1}, false},
		{2, 7, Counts{Local: 2, Remote: 2}, false},
		{0, 0, Counts{}, false},
		{-1, 0, Counts{}, true},
		{1, -4, Counts{}, true},
	}
	for _, tt := range tests {
		got, err := checkCounts(tt.local, tt.remote)
		if (err != nil) != tt.wantErr {
			t.Errorf("checkCounts(%d, %d) error = %v, wantErr %v", tt.local, tt.remote, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("checkCounts(%d, %d) = %+v, want %+v", tt.local, tt.remote, got, tt.want)
		}
	}
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()

	empty, err := store.Load()
	if err != nil {
		t.Fatalf("Load() on fresh store failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh store has %d entries", len(empty))
	}

	first := map[string]Counts{
		"/a.csv": {Local: 3, Remote: 1},
		"/b.csv": {Local: 2, Remote: 2},
	}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	second := map[string]Counts{"/a.csv": {Local: 4, Remote: 4}}
	if err := store.Save(second); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Errorf("Load() = %v, want %v", got, second)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenStore("", filepath.Join(dir, DefaultFilename))
	if err != nil {
		t.Fatalf("OpenStore(csv) failed: %v", err)
	}
	if _, ok := s.(*CSVStore); !ok {
		t.Errorf("OpenStore(\"\") = %T, want *CSVStore", s)
	}

	if _, err := OpenStore("redis", dir); err == nil {
		t.Error("expected error for unknown backend")
	}
}
