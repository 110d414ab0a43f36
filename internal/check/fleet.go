package check

import (
	"context"
	"sync"

	"github.com/MacJediWizard/restic-health/internal/restic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fleet fans the orchestrator out across all configured repository pairs.
type Fleet struct {
	orch   *Orchestrator
	logger zerolog.Logger
}

// NewFleet creates a Fleet around the given orchestrator.
func NewFleet(orch *Orchestrator, logger zerolog.Logger) *Fleet {
	return &Fleet{
		orch:   orch,
		logger: logger.With().Str("component", "fleet").Logger(),
	}
}

// Run checks every target concurrently and returns the number of failed
// pairs. All checks start immediately; outcomes are collected in completion
// order by this single goroutine, so the failure count needs no locking.
func (f *Fleet) Run(ctx context.Context, targets []restic.Target, skipStale bool) int {
	logger := f.logger.With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().
		Int("targets", len(targets)).
		Bool("skip_stale", skipStale).
		Msg("starting fleet check")

	results := make(chan Result, len(targets))
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t restic.Target) {
			defer wg.Done()
			results <- f.orch.Run(ctx, t, skipStale)
		}(t)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	failed := 0
	for res := range results {
		switch res.Outcome {
		case OutcomeDone:
			logger.Info().Str("target", res.Target.Name()).Msg("check succeeded")
		case OutcomeSkipped:
			logger.Info().Str("target", res.Target.Name()).Msg("check skipped, no fresh snapshot")
		case OutcomeFailed:
			failed++
			logger.Error().Str("target", res.Target.Name()).Err(res.Err).Msg("check failed")
		}
	}

	if failed > 0 {
		logger.Error().Int("failed", failed).Int("targets", len(targets)).Msg("fleet check finished with failures")
	} else {
		logger.Info().Int("targets", len(targets)).Msg("fleet check finished")
	}
	return failed
}
