// Package migrate walks a store through the schema catalogue.
//
// Every stage of a Plan is registered as a goose Go migration, so goose
// keeps the authoritative version ledger. Lightweight stages run inside the
// goose transaction. Custom stages run with goose transactions disabled and
// commit their pre-transform, structural swap and post-transform as three
// units, each recording a phase marker in the metadata table in the same
// transaction. A stage found between units is reported as ErrInterrupted
// unless the migrator was built WithResume.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/schema"
)

const (
	metadataTable    = "metadata"
	versionTable     = "goose_db_version"
	keySchemaVersion = "schema_version"

	markerPre  = "pre"
	markerSwap = "swap"
	markerDone = "done"
)

// Migrator applies a Plan to one database.
type Migrator struct {
	db         *sql.DB
	plan       *Plan
	exportPath string
	logger     *zap.Logger
	resume     bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithPlan replaces DefaultPlan.
func WithPlan(p *Plan) Option {
	return func(m *Migrator) { m.plan = p }
}

// WithExportPath sets where custom stages write the export artifact.
func WithExportPath(path string) Option {
	return func(m *Migrator) { m.exportPath = path }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithResume lets Migrate continue a custom stage an earlier run left
// between committed units, starting after the last recorded marker.
func WithResume(resume bool) Option {
	return func(m *Migrator) { m.resume = resume }
}

// New returns a Migrator for db.
func New(db *sql.DB, opts ...Option) *Migrator {
	m := &Migrator{
		db:     db,
		plan:   DefaultPlan(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.exportPath == "" {
		m.exportPath = filepath.Join(os.TempDir(), "marquee-export.json")
	}
	m.logger = m.logger.Named("migrate")
	return m
}

// Plan returns the migrator's plan.
func (m *Migrator) Plan() *Plan { return m.plan }

// ExportPath returns the export artifact location.
func (m *Migrator) ExportPath() string { return m.exportPath }

// Result describes one Migrate call.
type Result struct {
	RunID   string
	From    schema.Version
	To      schema.Version
	Applied []string
}

// Migrate brings the store to target, applying stages strictly in order
// and stopping at the first failure. Failures are *Error.
func (m *Migrator) Migrate(ctx context.Context, target schema.Version) (*Result, error) {
	targetOrd, ok := m.plan.Ordinal(target)
	if !ok {
		return nil, &Error{Phase: PhasePlan, Err: fmt.Errorf("%w: target %s", ErrUnknownVersion, target)}
	}
	if err := m.ensureMetadata(ctx); err != nil {
		return nil, &Error{Phase: PhasePlan, Err: err}
	}
	current, err := m.currentOrdinal(ctx)
	if err != nil {
		return nil, &Error{Phase: PhasePlan, Err: err}
	}
	from, _ := m.plan.Model(current)
	if current > targetOrd {
		return nil, &Error{Phase: PhasePlan, Err: fmt.Errorf("%w: store is at %s, target %s", ErrDowngrade, from.Version, target)}
	}

	// Storage left between units of the next stage matches neither
	// generation. Only a resumed run that includes that stage may go on.
	stage, marker, err := m.interrupted(ctx, current)
	if err != nil {
		return nil, &Error{Phase: PhasePlan, Err: err}
	}
	if marker != "" && (!m.resume || targetOrd <= current) {
		return nil, &Error{Stage: stage.Name(), Phase: phaseAfter(marker), Err: fmt.Errorf("%w: last committed unit %q, export artifact %s (present: %t)",
			ErrInterrupted, marker, m.exportPath, interchange.Exists(m.exportPath))}
	}

	res := &Result{RunID: ulid.Make().String(), From: from.Version, To: target}
	if current == targetOrd {
		return res, nil
	}

	log := m.logger.With(zap.String("run_id", res.RunID))
	log.Info("migration started",
		zap.Stringer("from", from.Version),
		zap.Stringer("to", target),
	)

	var failure *Error
	provider, err := m.provider(res, log, &failure)
	if err != nil {
		return nil, &Error{Phase: PhasePlan, Err: err}
	}
	if _, err := provider.UpTo(ctx, targetOrd); err != nil {
		if failure != nil {
			log.Error("migration failed", zap.String("stage", failure.Stage), zap.String("phase", string(failure.Phase)), zap.Error(failure.Err))
			return res, failure
		}
		log.Error("migration failed", zap.Error(err))
		return res, &Error{Phase: PhaseRecord, Err: err}
	}

	log.Info("migration finished", zap.Strings("applied", res.Applied))
	return res, nil
}

// Current returns the version the store is recorded at. An unmigrated store
// reports the zero version.
func (m *Migrator) Current(ctx context.Context) (schema.Version, error) {
	model, err := m.CurrentModel(ctx)
	if err != nil {
		return schema.Version{}, err
	}
	return model.Version, nil
}

// CurrentModel returns the generation the store is recorded at.
func (m *Migrator) CurrentModel(ctx context.Context) (schema.Model, error) {
	n, err := m.currentOrdinal(ctx)
	if err != nil {
		return schema.Model{}, err
	}
	model, _ := m.plan.Model(n)
	return model, nil
}

// Status summarizes where the store stands relative to the plan.
type Status struct {
	Current schema.Version
	Latest  schema.Version
	Pending []string
	// Interrupted names the stage an earlier run left between units, and
	// Marker the last unit it committed.
	Interrupted string
	Marker      string
}

// Status reports the recorded version, pending stages and any interrupted
// custom stage.
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	var st Status
	n, err := m.currentOrdinal(ctx)
	if err != nil {
		return st, err
	}
	current, _ := m.plan.Model(n)
	st.Current = current.Version
	st.Latest = m.plan.Latest().Version

	for _, stage := range m.plan.Stages()[n:] {
		st.Pending = append(st.Pending, stage.Name())
	}
	stage, marker, err := m.interrupted(ctx, n)
	if err != nil {
		return st, err
	}
	if marker != "" {
		st.Interrupted = stage.Name()
		st.Marker = marker
	}
	return st, nil
}

// interrupted returns the stage after ordinal n and its marker when that
// stage is a custom stage left between committed units.
func (m *Migrator) interrupted(ctx context.Context, n int64) (Stage, string, error) {
	stages := m.plan.Stages()
	if int(n) >= len(stages) || stages[n].Kind != KindCustom {
		return Stage{}, "", nil
	}
	exists, err := m.tableExists(ctx, m.db, metadataTable)
	if err != nil || !exists {
		return Stage{}, "", err
	}
	marker, err := getMetadata(ctx, m.db, phaseKey(stages[n]))
	if err != nil {
		return Stage{}, "", err
	}
	if marker != markerPre && marker != markerSwap {
		return Stage{}, "", nil
	}
	return stages[n], marker, nil
}

func (m *Migrator) provider(res *Result, log *zap.Logger, failure **Error) (*goose.Provider, error) {
	fail := func(st Stage, phase Phase, err error) error {
		*failure = &Error{Stage: st.Name(), Phase: phase, Err: err}
		return *failure
	}

	var migrations []*goose.Migration
	for i, st := range m.plan.Stages() {
		st := st
		version := int64(i + 1)
		var up *goose.GoFunc
		switch st.Kind {
		case KindLightweight:
			up = &goose.GoFunc{
				Mode: goose.TransactionEnabled,
				RunTx: func(ctx context.Context, tx *sql.Tx) error {
					stageLog := log.With(zap.String("stage", st.Name()))
					stageLog.Info("stage started", zap.Stringer("kind", st.Kind))
					if phase, err := m.runLightweight(ctx, tx, st); err != nil {
						return fail(st, phase, err)
					}
					res.Applied = append(res.Applied, st.Name())
					stageLog.Info("stage finished")
					return nil
				},
			}
		case KindCustom:
			up = &goose.GoFunc{
				Mode: goose.TransactionDisabled,
				RunDB: func(ctx context.Context, db *sql.DB) error {
					env := &Env{
						Stage:      st,
						ExportPath: m.exportPath,
						RunID:      res.RunID,
						Logger:     log.With(zap.String("stage", st.Name())),
					}
					env.Logger.Info("stage started", zap.Stringer("kind", st.Kind))
					if phase, err := m.runCustom(ctx, db, env); err != nil {
						return fail(st, phase, err)
					}
					res.Applied = append(res.Applied, st.Name())
					env.Logger.Info("stage finished")
					return nil
				},
			}
		}
		migrations = append(migrations, goose.NewGoMigration(version, up, nil))
	}

	return goose.NewProvider(goose.DialectSQLite3, m.db, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(migrations...),
	)
}

func (m *Migrator) runLightweight(ctx context.Context, tx *sql.Tx, st Stage) (Phase, error) {
	stmts, err := schema.Structural(st.From, st.To)
	if err != nil {
		return PhaseStructural, err
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return PhaseStructural, fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	if err := setMetadata(ctx, tx, keySchemaVersion, st.To.Version.String()); err != nil {
		return PhaseRecord, err
	}
	return "", nil
}

func (m *Migrator) runCustom(ctx context.Context, db *sql.DB, env *Env) (Phase, error) {
	st := env.Stage
	key := phaseKey(st)
	marker, err := getMetadata(ctx, db, key)
	if err != nil {
		return PhasePlan, err
	}

	switch marker {
	case "":
	case markerDone:
		// The post-transform committed but goose never recorded the version.
		env.Logger.Info("stage already complete, recording version")
		return "", nil
	case markerPre, markerSwap:
		if !m.resume {
			return phaseAfter(marker), fmt.Errorf("%w: last committed unit %q, export artifact %s (present: %t)",
				ErrInterrupted, marker, env.ExportPath, interchange.Exists(env.ExportPath))
		}
		env.Logger.Warn("resuming interrupted stage", zap.String("marker", marker))
	default:
		return PhasePlan, fmt.Errorf("unrecognized phase marker %q for %s", marker, key)
	}

	if marker == "" {
		err := m.unit(ctx, db, key, markerPre, func(tx *sql.Tx) error {
			if st.Pre == nil {
				return nil
			}
			return st.Pre(ctx, tx, env)
		})
		if err != nil {
			return PhasePre, err
		}
		env.runAfterCommit()
	}

	if marker == "" || marker == markerPre {
		stmts, err := schema.Rebuild(st.From, st.To)
		if err != nil {
			return PhaseSwap, err
		}
		err = m.unit(ctx, db, key, markerSwap, func(tx *sql.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("exec %q: %w", stmt, err)
				}
			}
			return nil
		})
		if err != nil {
			return PhaseSwap, err
		}
	}

	err = m.unit(ctx, db, key, markerDone, func(tx *sql.Tx) error {
		if st.Post != nil {
			if err := st.Post(ctx, tx, env); err != nil {
				return err
			}
		}
		return setMetadata(ctx, tx, keySchemaVersion, st.To.Version.String())
	})
	if err != nil {
		return PhasePost, err
	}
	env.runAfterCommit()
	return "", nil
}

// unit runs fn and records marker under key in one transaction.
func (m *Migrator) unit(ctx context.Context, db *sql.DB, key, marker string, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := setMetadata(ctx, tx, key, marker); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func phaseAfter(marker string) Phase {
	if marker == markerPre {
		return PhaseSwap
	}
	return PhasePost
}

func phaseKey(st Stage) string {
	return "stage:" + st.To.Version.String()
}

func (m *Migrator) currentOrdinal(ctx context.Context) (int64, error) {
	exists, err := m.tableExists(ctx, m.db, versionTable)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var n int64
	err = m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version_id), 0) FROM "+versionTable+" WHERE is_applied = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read recorded version: %w", err)
	}
	if _, ok := m.plan.Model(n); !ok {
		return 0, fmt.Errorf("%w: recorded ordinal %d is beyond %s", ErrUnknownVersion, n, m.plan.Latest().Version)
	}
	return n, nil
}

func (m *Migrator) tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}

func (m *Migrator) ensureMetadata(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+metadataTable+` (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMetadata(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM "+metadataTable+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read metadata %s: %w", key, err)
	}
	return value, nil
}

func setMetadata(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, "INSERT OR REPLACE INTO "+metadataTable+" (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", key, err)
	}
	return nil
}
