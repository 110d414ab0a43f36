package check

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/restic-health/internal/restic"
	"github.com/MacJediWizard/restic-health/internal/state"
)

// FreshnessResult is the outcome of a freshness check.
type FreshnessResult int

const (
	// Fresh means the repository has a snapshot newer than the recorded state.
	Fresh FreshnessResult = iota
	// Skipped means the repository was stale and skip-stale mode excluded it
	// from this run. Not an error.
	Skipped
)

// awaitFresh polls until the repository's newest snapshot is newer than the
// last recorded snapshot-list state. There is no signal for when a new
// snapshot will land, so a count-bounded poll is the only robust heuristic;
// exhausting it is a reportable anomaly, not a silent no-op. With skipStale
// set a single observation decides between Fresh and Skipped.
func (o *Orchestrator) awaitFresh(ctx context.Context, t restic.Target, skipStale bool) (FreshnessResult, error) {
	for attempt := 0; ; attempt++ {
		snapshots, _, err := o.repo.Snapshots(ctx, t)
		if err != nil {
			return 0, fmt.Errorf("freshness check: %w", err)
		}

		var newest time.Time
		if len(snapshots) > 0 {
			newest = snapshots[len(snapshots)-1].Time
		}

		// A missing pointer reports the zero time, so any snapshot at all
		// counts as fresh against a virgin state directory.
		recorded, err := o.store.LatestModTime(t.Name(), state.CategorySnapshots)
		if err != nil {
			return 0, fmt.Errorf("freshness check: %w", err)
		}

		if newest.After(recorded) {
			return Fresh, nil
		}

		if skipStale {
			o.logger.Info().
				Str("target", t.Name()).
				Time("last_snapshot", newest).
				Msg("no fresh snapshot, skipping")
			return Skipped, nil
		}

		if attempt >= o.policy.Retries {
			return 0, &StaleDataError{Target: t.Name(), LastSnapshot: newest}
		}

		o.logger.Debug().
			Str("target", t.Name()).
			Int("attempt", attempt+1).
			Dur("delay", o.policy.Delay).
			Msg("repository not fresh yet, retrying")
		time.Sleep(o.policy.Delay)
	}
}
