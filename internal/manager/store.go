package manager

import (
	"fmt"
	"strings"
)

// Backend names accepted by OpenStore.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// OpenStore opens the store named by backend at path. An empty backend
// selects the CSV store.
func OpenStore(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendCSV:
		return NewCSVStore(path), nil
	case BackendSQLite:
		return OpenSQLiteStore(path)
	case BackendPebble:
		return OpenPebbleStore(path)
	default:
		return nil, fmt.Errorf("unknown manager backend %q (want csv, sqlite or pebble)", backend)
	}
}
