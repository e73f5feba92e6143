// Package storage persists and restores the node's chain snapshot on disk.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// snapshotVersion tags the on-disk format so future layouts can be
// detected on load.
const snapshotVersion = 1

// ErrNoSnapshot is returned by Load when no snapshot file exists yet. The
// caller starts from a fresh genesis chain in that case.
var ErrNoSnapshot = errors.New("no snapshot on disk")

// Snapshot is the full node state persisted across restarts.
type Snapshot struct {
	Version    int              `json:"version"`
	SavedAt    time.Time        `json:"saved_at"`
	Chain      []database.Block `json:"chain"`
	Mempool    []database.Tx    `json:"mempool"`
	Balances   map[string]int64 `json:"balances"`
	Difficulty int              `json:"difficulty"`
}

// Storage writes snapshots to a single file, replacing it atomically so a
// crash mid-write can never leave a torn snapshot behind.
type Storage struct {
	path string
}

// New constructs storage rooted at the specified file path, creating the
// parent directory when needed.
func New(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	return &Storage{path: path}, nil
}

// Save writes the snapshot to a temporary file and renames it into place.
func (s *Storage) Save(snap Snapshot) error {
	snap.Version = snapshotVersion
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}

// Load reads the snapshot back from disk.
func (s *Storage) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	return snap, nil
}
