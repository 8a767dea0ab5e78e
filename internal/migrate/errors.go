package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVersion is returned for a target or recorded version that is
	// not in the plan.
	ErrUnknownVersion = errors.New("unknown schema version")

	// ErrDowngrade is returned when the target is older than the store.
	// Migrations are forward-only.
	ErrDowngrade = errors.New("downgrade not supported")

	// ErrInterrupted is returned when a custom stage was left between
	// committed units by an earlier run.
	ErrInterrupted = errors.New("stage interrupted by an earlier run")

	// ErrArtifactMissing is returned when a stage needs its export artifact
	// and the file is gone.
	ErrArtifactMissing = errors.New("export artifact missing")
)

// Phase names the part of a migration that failed.
type Phase string

const (
	PhasePlan       Phase = "plan"
	PhaseStructural Phase = "structural"
	PhasePre        Phase = "pre-transform"
	PhaseSwap       Phase = "swap"
	PhasePost       Phase = "post-transform"
	PhaseRecord     Phase = "record"
)

// Error is a fatal migration failure. The store is left at the last
// version a completed stage recorded.
type Error struct {
	Stage string
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("migrate: %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("migrate: stage %s: %s: %v", e.Stage, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
