package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstanceFilename is the file holding the installation ID, stored next to
// the log manager.
const InstanceFilename = ".rcsv-instance"

// EnsureInstanceID returns the ID stored at path, generating and persisting
// a new random one when the file is missing or invalid.
func EnsureInstanceID(path string) (string, error) {
	// #nosec G304 - path is derived from the manager location
	data, err := os.ReadFile(path)
	if err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
			return id.String(), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read instance id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return id, fmt.Errorf("failed to create instance id directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return id, fmt.Errorf("failed to persist instance id: %w", err)
	}
	return id, nil
}
