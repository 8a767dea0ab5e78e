package marquee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/marquee/internal/library"
	"github.com/hyperengineering/marquee/internal/migrate"
	"github.com/hyperengineering/marquee/internal/schema"
	"github.com/hyperengineering/marquee/internal/sortkey"
)

// dsnPragmas apply to every pooled connection.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Store is an open movie library at one schema generation.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string

	shape  movieShape
	logger *zap.Logger

	bus       *changeBus
	scheduler *SerialScheduler

	// seq counts committed writes. Guarded by mu.
	seq uint64
}

// movieShape is what the open generation stores for a movie.
type movieShape struct {
	model      schema.Model
	relational bool
	favorite   bool
	sortable   bool
	deriver    sortkey.Deriver
}

func shapeOf(m schema.Model) movieShape {
	movie, _ := m.Entity(schema.EntityMovie)
	_, relational := movie.Relationship(schema.RelationshipActors)
	return movieShape{
		model:      m,
		relational: relational,
		favorite:   movie.HasAttribute(schema.ColumnFavorite),
		sortable:   movie.HasAttribute(schema.ColumnSortableTitle),
		deriver:    m.Deriver(),
	}
}

// Open opens the library described by cfg, migrating it to
// cfg.SchemaVersion first. A failed migration is returned as
// *MigrationError and leaves no handle; callers should treat it as fatal.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Debug, cfg.DebugLogPath)
		if err != nil {
			return nil, err
		}
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	m := migrate.New(db,
		migrate.WithExportPath(cfg.ExportPath),
		migrate.WithLogger(logger),
		migrate.WithResume(cfg.ResumeMigration),
	)
	target := cfg.targetVersion()

	if cfg.BackupBeforeMigrate {
		if err := backupBeforeMigrate(ctx, db, m, cfg.DBPath, target, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	if _, err := m.Migrate(ctx, target); err != nil {
		db.Close()
		return nil, err
	}

	model, err := m.CurrentModel(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read schema version: %w", err)
	}

	s := &Store{
		db:        db,
		path:      cfg.DBPath,
		shape:     shapeOf(model),
		logger:    logger.Named("store"),
		bus:       newChangeBus(),
		scheduler: NewSerialScheduler(logger.Named("observe")),
	}
	s.logger.Debug("store opened",
		zap.String("path", cfg.DBPath),
		zap.Stringer("schema_version", model.Version),
	)
	return s, nil
}

// NewStore opens or creates the library at path at the latest schema
// version.
func NewStore(path string) (*Store, error) {
	return Open(context.Background(), Config{DBPath: path})
}

// MustOpen is like Open but panics on error.
func MustOpen(ctx context.Context, cfg Config) *Store {
	s, err := Open(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("marquee: open store: %v", err))
	}
	return s
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func backupBeforeMigrate(ctx context.Context, db *sql.DB, m *migrate.Migrator, path string, target schema.Version, logger *zap.Logger) error {
	current, err := m.Current(ctx)
	if err != nil {
		return fmt.Errorf("store: backup: %w", err)
	}
	if current.IsZero() || !current.Less(target) {
		return nil
	}
	// Fold the WAL into the main file so the copy is complete.
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: backup: checkpoint: %w", err)
	}
	dest := library.BackupPath(path, current.String())
	copied, err := library.Backup(path, dest)
	if err != nil {
		return err
	}
	if copied {
		logger.Info("database backed up before migration", zap.String("backup", dest))
	}
	return nil
}

// MigrationStatus describes a library relative to the shipped generations.
type MigrationStatus struct {
	Current string   `json:"current"`
	Latest  string   `json:"latest"`
	Pending []string `json:"pending"`
	// Interrupted names a reshaping stage an earlier run left half-applied.
	Interrupted string `json:"interrupted,omitempty"`
	Marker      string `json:"marker,omitempty"`
	ExportPath  string `json:"export_path"`
}

// Inspect reports the migration status of the library described by cfg
// without migrating it.
func Inspect(ctx context.Context, cfg Config) (MigrationStatus, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return MigrationStatus{}, err
	}
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer db.Close()

	st, err := migrate.New(db, migrate.WithExportPath(cfg.ExportPath)).Status(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("store: inspect: %w", err)
	}
	status := MigrationStatus{
		Latest:      st.Latest.String(),
		Pending:     st.Pending,
		Interrupted: st.Interrupted,
		Marker:      st.Marker,
		ExportPath:  cfg.ExportPath,
	}
	if !st.Current.IsZero() {
		status.Current = st.Current.String()
	}
	if status.Pending == nil {
		status.Pending = []string{}
	}
	return status, nil
}

// SchemaVersion returns the generation the store is open at.
func (s *Store) SchemaVersion() string {
	return s.shape.model.Version.String()
}

// Relational reports whether actors are stored as entities.
func (s *Store) Relational() bool {
	return s.shape.relational
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Metadata returns the value stored under key, or "" when unset.
func (s *Store) Metadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get metadata: %w", err)
	}
	return value, nil
}

// Close cancels every subscription, stops the default scheduler and closes
// the database. It must not be called from an observer callback.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.cancelAll()
	s.scheduler.Close()
	return s.db.Close()
}

// changes collects the entities a mutation touched.
type changes map[string]struct{}

func (c changes) touch(entities ...string) {
	for _, e := range entities {
		c[e] = struct{}{}
	}
}

// write runs fn in a transaction under the write lock and publishes the
// touched entities once the transaction has committed and the lock is
// released.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx, c changes) error) error {
	c := changes{}
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			return ErrStoreClosed
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin transaction: %w", err)
		}
		defer tx.Rollback() // no-op if committed

		if err := fn(tx, c); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit: %w", err)
		}
		if len(c) > 0 {
			s.seq++
		}
		return nil
	}()
	if err != nil {
		return err
	}

	if len(c) > 0 {
		s.bus.publish(c)
	}
	return nil
}
