package check

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MacJediWizard/restic-health/internal/restic"
	"github.com/MacJediWizard/restic-health/internal/state"
	"github.com/rs/zerolog"
)

// Outcome is the terminal state of one repository check.
type Outcome int

const (
	// OutcomeDone means the check completed and all artifacts were written.
	OutcomeDone Outcome = iota
	// OutcomeSkipped means the repository had no fresh snapshot and skip-stale
	// mode excluded it from this run.
	OutcomeSkipped
	// OutcomeFailed means the check aborted with an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal report for one repository pair.
type Result struct {
	Target  restic.Target
	Outcome Outcome
	Err     error
}

// Orchestrator drives the health check workflow for single repository pairs:
// await freshness, await lock clearance, then collect and persist diagnostics.
type Orchestrator struct {
	repo   Repository
	store  StateStore
	policy RetryPolicy
	logger zerolog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo Repository, store StateStore, policy RetryPolicy, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:   repo,
		store:  store,
		policy: policy,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run checks one repository pair. Every error is converted into a Failed
// result here; nothing escapes to affect other pairs.
func (o *Orchestrator) Run(ctx context.Context, t restic.Target, skipStale bool) Result {
	o.logger.Info().Str("target", t.Name()).Msg("checking repository")

	fresh, err := o.awaitFresh(ctx, t, skipStale)
	if err != nil {
		return Result{Target: t, Outcome: OutcomeFailed, Err: err}
	}
	if fresh == Skipped {
		return Result{Target: t, Outcome: OutcomeSkipped}
	}

	if err := o.awaitUnlocked(ctx, t); err != nil {
		return Result{Target: t, Outcome: OutcomeFailed, Err: err}
	}

	if err := o.collect(ctx, t); err != nil {
		return Result{Target: t, Outcome: OutcomeFailed, Err: err}
	}

	o.logger.Info().Str("target", t.Name()).Msg("repository check complete")
	return Result{Target: t, Outcome: OutcomeDone}
}

// collect fetches the snapshot list and the statistics derived from it, and
// persists each as its own state artifact. The first failure aborts the
// remaining sub-steps for this pair.
func (o *Orchestrator) collect(ctx context.Context, t restic.Target) error {
	pair := t.Name()

	snapshots, raw, err := o.repo.Snapshots(ctx, t)
	if err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}
	if err := o.store.Persist(pair, state.CategorySnapshots, raw); err != nil {
		return err
	}

	count, err := json.Marshal(map[string]int{"snapshot_count": len(snapshots)})
	if err != nil {
		return fmt.Errorf("encode snapshot count: %w", err)
	}
	if err := o.store.Persist(pair, state.CategorySnapshotCount, count); err != nil {
		return err
	}

	if len(snapshots) >= 1 {
		stats := []struct {
			category string
			mode     string
			snapshot string
		}{
			{state.CategoryRestoreSizeLatest, "restore-size", "latest"},
			{state.CategoryRawDataLatest, "raw-data", "latest"},
			{state.CategoryRawDataAll, "raw-data", ""},
		}
		for _, s := range stats {
			payload, err := o.repo.Stats(ctx, t, s.mode, s.snapshot)
			if err != nil {
				return fmt.Errorf("collect %s: %w", s.category, err)
			}
			if err := o.store.Persist(pair, s.category, payload); err != nil {
				return err
			}
		}
	}

	if len(snapshots) >= 2 {
		// The list is oldest-first, so the last two entries are the most
		// recent pair, already in the order restic diff expects.
		older := snapshots[len(snapshots)-2]
		newer := snapshots[len(snapshots)-1]
		payload, err := o.repo.Diff(ctx, t, older.ID, newer.ID)
		if err != nil {
			return fmt.Errorf("collect diff stats: %w", err)
		}
		if err := o.store.Persist(pair, state.CategoryDiffLatest, payload); err != nil {
			return err
		}
	}

	return nil
}
