// Package snapshotstore persists a single serialized snapshot to the
// local filesystem: one metadata file recording the covered index and a
// checksum, one data file holding the snapshot bytes. Both are written to
// temp paths and atomically renamed into place, so a crash mid-write
// never leaves a half-written snapshot visible to Load.
package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/arrowquorum/quorumlock/logger"
	"github.com/arrowquorum/quorumlock/types"
)

const (
	metaFilename = "snapshot_meta.json"
	dataFilename = "snapshot.dat"

	ownRW = 0o600
)

// ErrNoSnapshot is returned by Load when the store has never saved one.
var ErrNoSnapshot = errors.New("snapshotstore: no snapshot")

// ErrCorruptedSnapshot is returned by Load when the data file's checksum
// does not match the one recorded in its metadata.
var ErrCorruptedSnapshot = errors.New("snapshotstore: corrupted snapshot")

type metadata struct {
	LastIncludedIndex types.Index `json:"lastIncludedIndex"`
	Checksum          uint32      `json:"checksum"`
	Size              int         `json:"size"`
}

// FileStore persists one snapshot in a single directory on the local
// filesystem.
type FileStore struct {
	dir string
	log logger.Logger
}

// NewFileStore returns a FileStore rooted at dir, creating dir if it
// doesn't already exist.
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("snapshotstore: create dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir, log: log.WithComponent("snapshotstore")}, nil
}

func (s *FileStore) metaPath() string { return filepath.Join(s.dir, metaFilename) }
func (s *FileStore) dataPath() string { return filepath.Join(s.dir, dataFilename) }

// Save persists data as the snapshot covering up to lastIncludedIndex,
// replacing whatever snapshot was there before.
func (s *FileStore) Save(ctx context.Context, lastIncludedIndex types.Index, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	meta := metadata{
		LastIncludedIndex: lastIncludedIndex,
		Checksum:          crc32.ChecksumIEEE(data),
		Size:              len(data),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("snapshotstore: encode metadata: %w", err)
	}

	tmpData := s.dataPath() + ".tmp"
	tmpMeta := s.metaPath() + ".tmp"

	if err := os.WriteFile(tmpData, data, ownRW); err != nil {
		return fmt.Errorf("snapshotstore: write temp data: %w", err)
	}
	if err := os.WriteFile(tmpMeta, metaBytes, ownRW); err != nil {
		_ = os.Remove(tmpData)
		return fmt.Errorf("snapshotstore: write temp metadata: %w", err)
	}

	// Data is renamed into place first: a reader that sees the new
	// metadata is guaranteed to also see the new data, never a stale one.
	if err := os.Rename(tmpData, s.dataPath()); err != nil {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("snapshotstore: commit data: %w", err)
	}
	if err := os.Rename(tmpMeta, s.metaPath()); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("snapshotstore: commit metadata: %w", err)
	}

	s.log.Infow("snapshot saved", "lastIncludedIndex", lastIncludedIndex, "size", len(data))
	return nil
}

// Load returns the most recently saved snapshot. It returns ErrNoSnapshot
// if Save has never been called, and ErrCorruptedSnapshot if the data
// file's checksum no longer matches its metadata.
func (s *FileStore) Load(ctx context.Context) (types.Index, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	metaBytes, err := os.ReadFile(s.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, ErrNoSnapshot
		}
		return 0, nil, fmt.Errorf("snapshotstore: read metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}

	data, err := os.ReadFile(s.dataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, fmt.Errorf("%w: data file missing", ErrCorruptedSnapshot)
		}
		return 0, nil, fmt.Errorf("snapshotstore: read data: %w", err)
	}

	if crc32.ChecksumIEEE(data) != meta.Checksum || len(data) != meta.Size {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptedSnapshot)
	}

	s.log.Infow("snapshot loaded", "lastIncludedIndex", meta.LastIncludedIndex, "size", len(data))
	return meta.LastIncludedIndex, data, nil
}
