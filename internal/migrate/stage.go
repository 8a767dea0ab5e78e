package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperengineering/marquee/internal/schema"
)

// Kind distinguishes mechanical stages from data-reshaping ones.
type Kind int

const (
	// KindLightweight stages are applied from the descriptor diff alone, in
	// one transaction together with the version record.
	KindLightweight Kind = iota + 1
	// KindCustom stages run a pre-transform, the structural swap and a
	// post-transform as three separately committed units.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindLightweight:
		return "lightweight"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Transform is a data step of a custom stage. It runs inside the
// transaction of its unit; the unit's phase marker is written in the same
// transaction after it returns.
type Transform func(ctx context.Context, tx *sql.Tx, env *Env) error

// Stage transforms a store shaped like From into one shaped like To.
type Stage struct {
	From schema.Model
	To   schema.Model
	Kind Kind
	Pre  Transform
	Post Transform
}

// Lightweight returns a stage applied purely from the structural diff.
func Lightweight(from, to schema.Model) Stage {
	return Stage{From: from, To: to, Kind: KindLightweight}
}

// Custom returns a stage with data transforms around a structural swap.
// Either transform may be nil.
func Custom(from, to schema.Model, pre, post Transform) Stage {
	return Stage{From: from, To: to, Kind: KindCustom, Pre: pre, Post: post}
}

// Name identifies the stage in logs and errors.
func (s Stage) Name() string {
	from := "empty"
	if !s.From.IsEmpty() {
		from = s.From.Version.String()
	}
	return from + " -> " + s.To.Version.String()
}

// Env is what a transform may see of the running migration.
type Env struct {
	Stage      Stage
	ExportPath string
	RunID      string
	Logger     *zap.Logger

	afterCommit []func() error
}

// AfterCommit registers fn to run once the unit's transaction commits.
// Failures are logged, not returned: the stage has already been applied.
func (e *Env) AfterCommit(fn func() error) {
	e.afterCommit = append(e.afterCommit, fn)
}

func (e *Env) runAfterCommit() {
	for _, fn := range e.afterCommit {
		if err := fn(); err != nil {
			e.Logger.Warn("post-commit cleanup failed", zap.Error(err))
		}
	}
	e.afterCommit = nil
}
