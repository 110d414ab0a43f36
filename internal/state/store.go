// Package state persists diagnostic payloads as immutable timestamped
// artifacts with a per-category latest pointer.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Categories of state artifacts written per repository pair.
const (
	CategorySnapshots         = "raw-snapshots"
	CategorySnapshotCount     = "snapshot-count"
	CategoryRestoreSizeLatest = "raw-stats-restore-size-latest"
	CategoryRawDataLatest     = "raw-stats-raw-data-latest"
	CategoryRawDataAll        = "raw-stats-raw-data-all"
	CategoryDiffLatest        = "raw-diff-stats-latest"
)

// Store writes state artifacts under one directory per repository pair.
// Artifacts are append-only; only the latest pointer is ever replaced.
type Store struct {
	root   string
	logger zerolog.Logger
}

// New creates a Store rooted at the given state directory.
func New(root string, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger.With().Str("component", "state").Logger(),
	}
}

// Persist writes content as a new artifact for the category and advances the
// latest pointer to it. The pair's directory is created on first use, and
// prior artifacts are never touched.
func (s *Store) Persist(pair, category string, content []byte) error {
	dir := filepath.Join(s.root, pair)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	now := time.Now().UTC()
	// The nanosecond component keeps names unique even when two artifacts for
	// the same category land within the same second.
	artifact := fmt.Sprintf("%s-%s-%d.json", category, now.Format("2006-01-02"), now.UnixNano())
	if err := os.WriteFile(filepath.Join(dir, artifact), content, 0o644); err != nil {
		return fmt.Errorf("write state artifact: %w", err)
	}

	if err := advancePointer(dir, category, artifact); err != nil {
		return err
	}

	s.logger.Debug().
		Str("pair", pair).
		Str("category", category).
		Str("artifact", artifact).
		Msg("state artifact written")
	return nil
}

// Latest returns the content the latest pointer for the category resolves to.
func (s *Store) Latest(pair, category string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, pair, pointerName(category)))
	if err != nil {
		return nil, fmt.Errorf("read latest %s: %w", category, err)
	}
	return data, nil
}

// LatestModTime returns the modification time of the latest pointer itself,
// or the zero time when no pointer exists yet for the category.
func (s *Store) LatestModTime(pair, category string) (time.Time, error) {
	info, err := os.Lstat(filepath.Join(s.root, pair, pointerName(category)))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("stat latest pointer: %w", err)
	}
	return info.ModTime(), nil
}

// advancePointer replaces the category pointer in a single rename so readers
// never observe a missing or dangling pointer.
func advancePointer(dir, category, artifact string) error {
	pointer := filepath.Join(dir, pointerName(category))
	tmp := pointer + ".tmp"

	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale temp pointer: %w", err)
	}
	if err := os.Symlink(artifact, tmp); err != nil {
		return fmt.Errorf("create pointer symlink: %w", err)
	}
	if err := os.Rename(tmp, pointer); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace latest pointer: %w", err)
	}
	return nil
}

func pointerName(category string) string {
	return category + ".latest.json"
}
