// Package restic wraps the restic CLI for read-mostly health check operations.
package restic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrRepositoryNotInitialized is returned when the repository has not been initialized.
var ErrRepositoryNotInitialized = errors.New("repository not initialized")

// Target identifies one repository pair to check: a named location combined
// with one of its backends.
type Target struct {
	Location     string
	Backend      string
	Repository   string
	PasswordFile string
	CacheDir     string
}

// Name returns the location@backend identity used in logs and state paths.
func (t Target) Name() string {
	return t.Location + "@" + t.Backend
}

// InvocationError reports a restic invocation that exited non-zero.
type InvocationError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("restic %s exited %d: %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Snapshot represents a restic snapshot. Restic lists snapshots oldest-first.
type Snapshot struct {
	ID       string    `json:"id"`
	ShortID  string    `json:"short_id"`
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname"`
	Paths    []string  `json:"paths"`
	Tags     []string  `json:"tags,omitempty"`
}

// Restic wraps the restic CLI.
type Restic struct {
	binary string
	logger zerolog.Logger
}

// New creates a new Restic wrapper using the restic binary from PATH.
func New(logger zerolog.Logger) *Restic {
	return NewWithBinary("restic", logger)
}

// NewWithBinary creates a new Restic wrapper with a custom binary path.
func NewWithBinary(binary string, logger zerolog.Logger) *Restic {
	return &Restic{
		binary: binary,
		logger: logger.With().Str("component", "restic").Logger(),
	}
}

// Snapshots lists all snapshots in the repository. It returns both the parsed
// list (in restic's oldest-first order) and the raw JSON payload.
func (r *Restic) Snapshots(ctx context.Context, t Target) ([]Snapshot, []byte, error) {
	r.logger.Debug().Str("target", t.Name()).Msg("listing snapshots")

	output, err := r.run(ctx, t, []string{"snapshots"}, true)
	if err != nil {
		if strings.Contains(err.Error(), "repository does not exist") {
			return nil, nil, ErrRepositoryNotInitialized
		}
		return nil, nil, fmt.Errorf("list snapshots: %w", err)
	}

	var snapshots []Snapshot
	if err := json.Unmarshal(output, &snapshots); err != nil {
		return nil, nil, fmt.Errorf("parse snapshots: %w", err)
	}

	r.logger.Debug().Str("target", t.Name()).Int("count", len(snapshots)).Msg("snapshots listed")
	return snapshots, output, nil
}

// Stats returns repository statistics in the given mode. An empty snapshot ID
// scopes the statistics to the whole repository.
func (r *Restic) Stats(ctx context.Context, t Target, mode, snapshot string) ([]byte, error) {
	r.logger.Debug().
		Str("target", t.Name()).
		Str("mode", mode).
		Str("snapshot", snapshot).
		Msg("getting repository stats")

	args := []string{"stats", "--mode", mode}
	if snapshot != "" {
		args = append(args, snapshot)
	}

	output, err := r.run(ctx, t, args, true)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %w", mode, err)
	}
	return output, nil
}

// Diff compares two snapshots and returns the final summary line of the
// output, which carries the change statistics.
func (r *Restic) Diff(ctx context.Context, t Target, olderID, newerID string) ([]byte, error) {
	r.logger.Debug().
		Str("target", t.Name()).
		Str("older", olderID).
		Str("newer", newerID).
		Msg("computing snapshot diff")

	output, err := r.run(ctx, t, []string{"diff", olderID, newerID}, true)
	if err != nil {
		return nil, fmt.Errorf("diff snapshots: %w", err)
	}

	line := lastLine(output)
	if len(line) == 0 {
		return nil, errors.New("no diff summary in output")
	}
	return line, nil
}

// Locks lists the identifiers of all locks currently held on the repository.
func (r *Restic) Locks(ctx context.Context, t Target) ([]string, error) {
	output, err := r.run(ctx, t, []string{"list", "locks"}, true)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	var ids []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}

	r.logger.Debug().Str("target", t.Name()).Int("count", len(ids)).Msg("locks listed")
	return ids, nil
}

// Unlock removes stale locks from the repository. Restic only ever removes
// locks whose holder is no longer refreshing them, so this is safe to call at
// any time, including when no locks exist.
func (r *Restic) Unlock(ctx context.Context, t Target) error {
	if _, err := r.run(ctx, t, []string{"unlock"}, false); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	return nil
}

// LockContents returns the contents of a single lock for diagnostics.
func (r *Restic) LockContents(ctx context.Context, t Target, id string) ([]byte, error) {
	output, err := r.run(ctx, t, []string{"cat", "lock", id}, true)
	if err != nil {
		return nil, fmt.Errorf("cat lock %s: %w", id, err)
	}
	return output, nil
}

// run executes a single restic command against the target repository. The
// repository address and password file are passed via the environment; the
// credential contents never leave the file. Read-only commands additionally
// get --no-lock so health checks do not contend with backup clients.
func (r *Restic) run(ctx context.Context, t Target, args []string, readOnly bool) ([]byte, error) {
	argv := []string{"--json", "--quiet"}
	if t.CacheDir != "" {
		argv = append(argv, "--cache-dir", t.CacheDir)
	}
	if readOnly {
		argv = append(argv, "--no-lock")
	}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, r.binary, argv...)
	cmd.Env = append(cmd.Environ(),
		"RESTIC_REPOSITORY="+t.Repository,
		"RESTIC_PASSWORD_FILE="+t.PasswordFile,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("command", r.binary).
		Strs("args", argv).
		Msg("executing restic command")

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &InvocationError{
				Args:     argv,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("run restic: %w", err)
	}

	return stdout.Bytes(), nil
}

// lastLine returns the final non-empty line of output.
func lastLine(output []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := bytes.TrimSpace(lines[i]); len(line) > 0 {
			return line
		}
	}
	return nil
}
