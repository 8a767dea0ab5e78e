package migrate_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/migrate"
	"github.com/hyperengineering/marquee/internal/schema"
)

type fixture struct {
	db         *sql.DB
	exportPath string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "library.db")+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return fixture{db: db, exportPath: filepath.Join(dir, "export.json")}
}

func (f fixture) migrator(t *testing.T, opts ...migrate.Option) *migrate.Migrator {
	opts = append([]migrate.Option{
		migrate.WithExportPath(f.exportPath),
		migrate.WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	return migrate.New(f.db, opts...)
}

type seedMovie struct {
	title string
	cast  []string
}

var seedMovies = []seedMovie{
	{"The Way We Were", []string{"Barbra Streisand", "Robert Redford"}},
	{"Le Samouraï", []string{"Alain Delon", "François Périer"}},
	{"Le Cercle Rouge", []string{"Alain Delon", "Bourvil", "Yves Montand"}},
	{"Butch Cassidy and the Sundance Kid", []string{"Paul Newman", "Robert Redford"}},
	{"Silent Running", nil},
}

// seedGen1 brings f to 1.0.0 and inserts seedMovies in the embedded shape.
func seedGen1(t *testing.T, f fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := f.migrator(t).Migrate(ctx, schema.V1_0_0)
	require.NoError(t, err)

	for _, m := range seedMovies {
		cast := m.cast
		if cast == nil {
			cast = []string{}
		}
		b, err := json.Marshal(cast)
		require.NoError(t, err)
		_, err = f.db.ExecContext(ctx, "INSERT INTO movies (id, title, cast_names) VALUES (?, ?, ?)", uuid.NewString(), m.title, string(b))
		require.NoError(t, err)
	}
}

type movieSnapshot struct {
	Title    string
	Sortable string
	Favorite bool
	Cast     []string
}

func snapshot(t *testing.T, db *sql.DB) []movieSnapshot {
	t.Helper()
	ctx := context.Background()
	rows, err := db.QueryContext(ctx, "SELECT id, title, sortable_title, favorite FROM movies")
	require.NoError(t, err)

	type row struct {
		id int64
		movieSnapshot
	}
	var all []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.id, &r.Title, &r.Sortable, &r.Favorite))
		all = append(all, r)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	out := make([]movieSnapshot, 0, len(all))
	for _, r := range all {
		actors, err := entity.MovieActors(ctx, db, r.id)
		require.NoError(t, err)
		r.Cast = []string{}
		for _, a := range actors {
			r.Cast = append(r.Cast, a.Name)
		}
		out = append(out, r.movieSnapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func TestMigrate_EmptyStoreToLatest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.migrator(t)

	v, err := m.Current(ctx)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	res, err := m.Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Applied, 5)
	assert.Equal(t, "empty -> 1.0.0", res.Applied[0])

	v, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.V3_1_0, v)

	var recorded string
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&recorded))
	assert.Equal(t, "3.1.0", recorded)
	assert.Empty(t, snapshot(t, f.db))
}

func TestMigrate_NoOpAtTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.migrator(t)

	_, err := m.Migrate(ctx, schema.V2_0_0)
	require.NoError(t, err)
	res, err := m.Migrate(ctx, schema.V2_0_0)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
}

func TestMigrate_ReshapesEmbeddedCast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	_, err := f.db.ExecContext(ctx, "UPDATE movies SET favorite = 1 WHERE title = 'Silent Running'")
	require.Error(t, err, "favorite does not exist before 1.1.0")

	_, err = f.migrator(t).Migrate(ctx, schema.V1_1_0)
	require.NoError(t, err)
	_, err = f.db.ExecContext(ctx, "UPDATE movies SET favorite = 1 WHERE title = 'Silent Running'")
	require.NoError(t, err)

	_, err = f.migrator(t).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)

	got := snapshot(t, f.db)
	require.Len(t, got, len(seedMovies))

	byTitle := map[string]movieSnapshot{}
	for _, s := range got {
		byTitle[s.Title] = s
	}
	samourai := byTitle["Le Samouraï"]
	assert.Equal(t, "samouraï", samourai.Sortable, "3.0.0 article set strips French articles")
	assert.Equal(t, []string{"Alain Delon", "François Périer"}, samourai.Cast)
	assert.Equal(t, "way we were", byTitle["The Way We Were"].Sortable)
	assert.Equal(t, []string{"Alain Delon", "Bourvil", "Yves Montand"}, byTitle["Le Cercle Rouge"].Cast)
	assert.Empty(t, byTitle["Silent Running"].Cast)
	assert.True(t, byTitle["Silent Running"].Favorite)

	actors, err := entity.ListActors(ctx, f.db)
	require.NoError(t, err)
	assert.Len(t, actors, 7, "shared names resolve to one actor")

	delon, ok, err := entity.FindActor(ctx, f.db, "Alain Delon")
	require.NoError(t, err)
	require.True(t, ok)
	movies, err := entity.ActorMovieIDs(ctx, f.db, delon.ID)
	require.NoError(t, err)
	assert.Len(t, movies, 2)

	assert.False(t, interchange.Exists(f.exportPath), "artifact removed after reimport")
}

func TestMigrate_SortableTitlesAt2_0_0UseFirstArticleSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	_, err := f.migrator(t).Migrate(ctx, schema.V2_0_0)
	require.NoError(t, err)

	var sortable string
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT sortable_title FROM movies WHERE title = 'Le Samouraï'").Scan(&sortable))
	assert.Equal(t, "le samouraï", sortable)
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT sortable_title FROM movies WHERE title = 'The Way We Were'").Scan(&sortable))
	assert.Equal(t, "way we were", sortable)
}

func TestMigrate_DirectEqualsStepwise(t *testing.T) {
	ctx := context.Background()

	direct := newFixture(t)
	seedGen1(t, direct)
	_, err := direct.migrator(t).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)

	stepwise := newFixture(t)
	seedGen1(t, stepwise)
	for _, v := range migrate.DefaultPlan().Versions() {
		_, err := stepwise.migrator(t).Migrate(ctx, v)
		require.NoError(t, err, "step to %s", v)
	}

	assert.Equal(t, snapshot(t, direct.db), snapshot(t, stepwise.db))
}

func TestMigrate_Downgrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.migrator(t)

	_, err := m.Migrate(ctx, schema.V3_0_0)
	require.NoError(t, err)

	_, err = m.Migrate(ctx, schema.V1_1_0)
	var merr *migrate.Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, migrate.PhasePlan, merr.Phase)
	assert.ErrorIs(t, err, migrate.ErrDowngrade)

	v, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.V3_0_0, v)
}

func TestMigrate_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.migrator(t).Migrate(context.Background(), schema.MustParseVersion("4.0.0"))
	assert.ErrorIs(t, err, migrate.ErrUnknownVersion)
}

func failingPost(t *testing.T) *migrate.Plan {
	t.Helper()
	boom := func(ctx context.Context, tx *sql.Tx, env *migrate.Env) error {
		if err := migrate.ImportRelational(ctx, tx, env); err != nil {
			return err
		}
		return errors.New("disk on fire")
	}
	p, err := migrate.NewPlan(
		migrate.Lightweight(schema.Empty(), schema.Gen1()),
		migrate.Lightweight(schema.Gen1(), schema.Gen2()),
		migrate.Custom(schema.Gen2(), schema.Gen3(), nil, migrate.RecomputeSortableTitles),
		migrate.Custom(schema.Gen3(), schema.Gen4(), migrate.ExportEmbeddedCast, boom),
		migrate.Lightweight(schema.Gen4(), schema.Gen5()),
	)
	require.NoError(t, err)
	return p
}

func TestMigrate_PostFailureIsFatalAndNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	_, err := f.migrator(t, migrate.WithPlan(failingPost(t))).Migrate(ctx, schema.Latest().Version)
	var merr *migrate.Error
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Equal(t, "2.0.0 -> 3.0.0", merr.Stage)
	assert.Equal(t, migrate.PhasePost, merr.Phase)

	m := f.migrator(t)
	v, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.V2_0_0, v, "version never advances within a stage")
	assert.True(t, interchange.Exists(f.exportPath), "export kept for recovery")
	assert.Empty(t, snapshot(t, f.db), "reimport rolled back")

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0 -> 3.0.0", status.Interrupted)
	assert.Equal(t, []string{"2.0.0 -> 3.0.0", "3.0.0 -> 3.1.0"}, status.Pending)

	_, err = m.Migrate(ctx, schema.Latest().Version)
	require.ErrorIs(t, err, migrate.ErrInterrupted)
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, migrate.PhasePost, merr.Phase)

	_, err = f.migrator(t, migrate.WithResume(true)).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)

	got := snapshot(t, f.db)
	assert.Len(t, got, len(seedMovies), "resume reimports exactly once")
	assert.False(t, interchange.Exists(f.exportPath))

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Interrupted)
	assert.Empty(t, status.Pending)
}

func TestMigrate_InterruptedStageBlocksRecordedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	_, err := f.migrator(t, migrate.WithPlan(failingPost(t))).Migrate(ctx, schema.Latest().Version)
	require.Error(t, err)

	// Storage is relational while the recorded version is still 2.0.0.
	for _, m := range []*migrate.Migrator{f.migrator(t), f.migrator(t, migrate.WithResume(true))} {
		_, err = m.Migrate(ctx, schema.V2_0_0)
		require.ErrorIs(t, err, migrate.ErrInterrupted)
		var merr *migrate.Error
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, "2.0.0 -> 3.0.0", merr.Stage)
		assert.Equal(t, migrate.PhasePost, merr.Phase)
	}

	v, err := f.migrator(t).Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.V2_0_0, v)

	_, err = f.migrator(t, migrate.WithResume(true)).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)
	_, err = f.migrator(t).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)
}

func TestMigrate_PreFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	failingPre := func(ctx context.Context, tx *sql.Tx, env *migrate.Env) error {
		if err := migrate.ExportEmbeddedCast(ctx, tx, env); err != nil {
			return err
		}
		return errors.New("out of space")
	}
	p, err := migrate.NewPlan(
		migrate.Lightweight(schema.Empty(), schema.Gen1()),
		migrate.Lightweight(schema.Gen1(), schema.Gen2()),
		migrate.Custom(schema.Gen2(), schema.Gen3(), nil, migrate.RecomputeSortableTitles),
		migrate.Custom(schema.Gen3(), schema.Gen4(), failingPre, migrate.ImportRelational),
	)
	require.NoError(t, err)

	_, err = f.migrator(t, migrate.WithPlan(p)).Migrate(ctx, schema.V3_0_0)
	var merr *migrate.Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, migrate.PhasePre, merr.Phase)

	var n int
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies").Scan(&n))
	assert.Equal(t, len(seedMovies), n, "delete rolled back with the failed unit")

	// A clean rerun overwrites the stale export.
	_, err = f.migrator(t).Migrate(ctx, schema.Latest().Version)
	require.NoError(t, err)
	assert.Len(t, snapshot(t, f.db), len(seedMovies))
}

func TestMigrate_ResumeWithoutArtifactFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	_, err := f.migrator(t, migrate.WithPlan(failingPost(t))).Migrate(ctx, schema.Latest().Version)
	require.Error(t, err)
	require.NoError(t, interchange.Remove(f.exportPath))

	_, err = f.migrator(t, migrate.WithResume(true)).Migrate(ctx, schema.Latest().Version)
	assert.ErrorIs(t, err, migrate.ErrArtifactMissing)
}

func TestMigrate_CompletedStageWithoutVersionRecordIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedGen1(t, f)

	m := f.migrator(t)
	_, err := m.Migrate(ctx, schema.V3_0_0)
	require.NoError(t, err)
	before := snapshot(t, f.db)

	// Simulate a crash after the post-transform committed but before goose
	// recorded the version.
	_, err = f.db.ExecContext(ctx, "DELETE FROM goose_db_version WHERE version_id = 4")
	require.NoError(t, err)
	v, err := m.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, schema.V2_0_0, v)

	res, err := m.Migrate(ctx, schema.V3_0_0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0.0 -> 3.0.0"}, res.Applied)
	assert.Equal(t, before, snapshot(t, f.db), "no duplicate reimport")
}

func TestNewPlan_RejectsBrokenChain(t *testing.T) {
	_, err := migrate.NewPlan(
		migrate.Lightweight(schema.Empty(), schema.Gen1()),
		migrate.Lightweight(schema.Gen2(), schema.Gen3()),
	)
	assert.Error(t, err)

	_, err = migrate.NewPlan(migrate.Lightweight(schema.Gen1(), schema.Gen2()))
	assert.Error(t, err, "first stage must start from the empty model")

	_, err = migrate.NewPlan()
	assert.Error(t, err)
}

func TestPlan_Ordinals(t *testing.T) {
	p := migrate.DefaultPlan()
	n, ok := p.Ordinal(schema.V2_0_0)
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	m, ok := p.Model(0)
	require.True(t, ok)
	assert.True(t, m.IsEmpty())

	_, ok = p.Model(6)
	assert.False(t, ok)
	assert.Equal(t, schema.V3_1_0, p.Latest().Version)

	custom := 0
	for _, st := range p.Stages() {
		if st.Kind == migrate.KindCustom {
			custom++
		}
	}
	assert.Equal(t, 2, custom)
}
