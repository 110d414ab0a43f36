// Package check implements the per-repository health check workflow and the
// fleet-wide fan-out across repository pairs.
package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/restic-health/internal/restic"
)

// RetryPolicy bounds the freshness and lock polling loops. Retries counts
// attempts after the first, so Retries=3 allows four observations in total.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// Repository is the restic surface the health check consumes.
type Repository interface {
	// Snapshots returns the parsed snapshot list, oldest-first, plus the raw payload.
	Snapshots(ctx context.Context, t restic.Target) ([]restic.Snapshot, []byte, error)

	// Stats returns repository statistics in the given mode, optionally scoped
	// to one snapshot.
	Stats(ctx context.Context, t restic.Target, mode, snapshot string) ([]byte, error)

	// Diff returns the summary line of the diff between two snapshots.
	Diff(ctx context.Context, t restic.Target, olderID, newerID string) ([]byte, error)

	// Locks lists the identifiers of all locks currently held.
	Locks(ctx context.Context, t restic.Target) ([]string, error)

	// Unlock removes stale locks. Safe to call when no locks exist.
	Unlock(ctx context.Context, t restic.Target) error

	// LockContents returns one lock's contents for diagnostics.
	LockContents(ctx context.Context, t restic.Target, id string) ([]byte, error)
}

// StateStore is the persistence surface the health check consumes.
type StateStore interface {
	Persist(pair, category string, content []byte) error
	LatestModTime(pair, category string) (time.Time, error)
}

// StaleDataError reports that a repository never produced a snapshot newer
// than the recorded state within the retry budget.
type StaleDataError struct {
	Target       string
	LastSnapshot time.Time
}

func (e *StaleDataError) Error() string {
	if e.LastSnapshot.IsZero() {
		return fmt.Sprintf("%s: no fresh snapshot (repository has no snapshots)", e.Target)
	}
	return fmt.Sprintf("%s: no fresh snapshot (latest from %s)",
		e.Target, e.LastSnapshot.Format(time.RFC3339))
}

// LockTimeoutError reports locks that remained active through the retry
// budget, carrying each lock's contents for operator diagnosis.
type LockTimeoutError struct {
	Target   string
	LockIDs  []string
	Contents map[string]string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%s: %d lock(s) still active after retries: %s",
		e.Target, len(e.LockIDs), strings.Join(e.LockIDs, ", "))
}
