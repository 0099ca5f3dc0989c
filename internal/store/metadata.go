package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataFile is the index record kept inside every output location.
const MetadataFile = ".qr_metadata.json"

// ErrMalformedMetadata marks a metadata file that exists but cannot be parsed.
var ErrMalformedMetadata = errors.New("malformed metadata")

// Metadata is the on-disk index record. LastUpdated stays a string so
// records written by other tools with looser timestamp formats still load.
type Metadata struct {
	Contents    []string `json:"qr_contents"`
	LastUpdated string   `json:"last_updated"`
}

// ReadMetadata loads the record at path. A missing file yields an error
// matching os.ErrNotExist; unparsable content yields ErrMalformedMetadata.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is inside the output location
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrMalformedMetadata, filepath.Base(path), err)
	}
	return m, nil
}

// WriteMetadata atomically replaces the record at path.
func WriteMetadata(path string, contents []string, now time.Time) error {
	if contents == nil {
		contents = []string{}
	}
	data, err := json.MarshalIndent(Metadata{
		Contents:    contents,
		LastUpdated: now.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".qrharvest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
