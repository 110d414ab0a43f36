package check

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/restic-health/internal/restic"
)

// awaitUnlocked polls until the repository holds no locks. Every attempt first
// clears stale locks (restic only removes locks whose holder stopped
// refreshing them, so this never removes a lock in legitimate use) and then
// lists what remains. On exhaustion the contents of every still-active lock
// are read and surfaced for operator diagnosis.
func (o *Orchestrator) awaitUnlocked(ctx context.Context, t restic.Target) error {
	var locks []string
	for attempt := 0; ; attempt++ {
		if err := o.repo.Unlock(ctx, t); err != nil {
			return fmt.Errorf("clear stale locks: %w", err)
		}

		var err error
		locks, err = o.repo.Locks(ctx, t)
		if err != nil {
			return fmt.Errorf("list locks: %w", err)
		}
		if len(locks) == 0 {
			return nil
		}

		if attempt >= o.policy.Retries {
			break
		}

		o.logger.Debug().
			Str("target", t.Name()).
			Strs("locks", locks).
			Int("attempt", attempt+1).
			Dur("delay", o.policy.Delay).
			Msg("repository still locked, retrying")
		time.Sleep(o.policy.Delay)
	}

	contents := make(map[string]string, len(locks))
	for _, id := range locks {
		data, err := o.repo.LockContents(ctx, t, id)
		if err != nil {
			contents[id] = fmt.Sprintf("unreadable: %v", err)
			continue
		}
		contents[id] = string(data)
	}
	for _, id := range locks {
		o.logger.Error().
			Str("target", t.Name()).
			Str("lock", id).
			Str("contents", contents[id]).
			Msg("lock still active after retries")
	}

	return &LockTimeoutError{Target: t.Name(), LockIDs: locks, Contents: contents}
}
