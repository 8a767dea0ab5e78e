package schema_test

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/marquee/internal/schema"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    schema.Version
		wantErr bool
	}{
		{"1.0.0", schema.Version{Major: 1}, false},
		{"3.1.0", schema.Version{Major: 3, Minor: 1}, false},
		{"v2.0.1", schema.Version{Major: 2, Patch: 1}, false},
		{"3.1", schema.Version{Major: 3, Minor: 1}, false},
		{"2", schema.Version{Major: 2}, false},
		{"", schema.Version{}, true},
		{"1.x.0", schema.Version{}, true},
		{"1.0.0.0", schema.Version{}, true},
		{"-1.0.0", schema.Version{}, true},
		{"3.1.0-beta", schema.Version{}, true},
		{"3.1.0+build", schema.Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := schema.ParseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, schema.ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersion_Ordering(t *testing.T) {
	c := schema.Catalogue()
	for i := 1; i < len(c); i++ {
		assert.True(t, c[i-1].Version.Less(c[i].Version), "%s should order before %s", c[i-1].Version, c[i].Version)
		assert.Equal(t, 1, c[i].Version.Compare(c[i-1].Version))
	}
	assert.Equal(t, 0, schema.V3_1_0.Compare(schema.MustParseVersion("3.1.0")))
	assert.True(t, schema.Version{}.IsZero())
	assert.Equal(t, "3.1.0", schema.V3_1_0.String())
}

func TestLookup(t *testing.T) {
	m, ok := schema.Lookup(schema.V2_0_0)
	require.True(t, ok)
	movie, ok := m.Entity(schema.EntityMovie)
	require.True(t, ok)
	assert.True(t, movie.HasAttribute(schema.ColumnSortableTitle))
	assert.True(t, movie.HasAttribute(schema.ColumnCastNames))

	_, ok = schema.Lookup(schema.MustParseVersion("9.9.9"))
	assert.False(t, ok)
	assert.Equal(t, schema.V3_1_0, schema.Latest().Version)
}

func TestCatalogue_IsImmutableAcrossCalls(t *testing.T) {
	first := schema.Gen1()
	first.Entities[0].Attributes[0].Name = "mutated"

	again := schema.Gen1()
	assert.Equal(t, schema.ColumnTitle, again.Entities[0].Attributes[0].Name)
}

func TestStructural_AddsFavoriteColumn(t *testing.T) {
	stmts, err := schema.Structural(schema.Gen1(), schema.Gen2())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ALTER TABLE movies ADD COLUMN favorite BOOLEAN NOT NULL DEFAULT 0",
	}, stmts)
}

func TestStructural_FromEmptyCreatesTables(t *testing.T) {
	stmts, err := schema.Structural(schema.Empty(), schema.Gen1())
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE movies"))
	assert.Contains(t, stmts[0], "id TEXT PRIMARY KEY")
	assert.Contains(t, stmts[0], "cast_names TEXT NOT NULL DEFAULT '[]'")
}

func TestStructural_RefusesRelationshipReshape(t *testing.T) {
	_, err := schema.Structural(schema.Gen3(), schema.Gen4())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrNotLightweight))
}

func TestStructural_IndexOnlyChange(t *testing.T) {
	stmts, err := schema.Structural(schema.Gen4(), schema.Gen5())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE INDEX IF NOT EXISTS idx_movies_sortable_title ON movies(sortable_title)",
		"CREATE INDEX IF NOT EXISTS idx_actors_name ON actors(name)",
	}, stmts)
}

func TestStructural_RetypedAttributeRebuildsByCopy(t *testing.T) {
	from := schema.Gen2()
	to := schema.Gen2()
	to.Entities[0].Attributes[2].Stable = false
	to.Entities[0].Attributes[2].Type = schema.TypeInteger

	stmts, err := schema.Structural(from, to)
	require.NoError(t, err)
	require.Len(t, stmts, 4)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE movies__rebuild"))
	assert.Equal(t, "INSERT INTO movies__rebuild (id, title, cast_names, favorite) SELECT id, title, cast_names, favorite FROM movies", stmts[1])
	assert.Equal(t, "DROP TABLE IF EXISTS movies", stmts[2])
	assert.Equal(t, "ALTER TABLE movies__rebuild RENAME TO movies", stmts[3])
}

func TestStructural_DropsRemovedColumn(t *testing.T) {
	to := schema.Gen2()
	to.Entities[0].Attributes = to.Entities[0].Attributes[:2]

	stmts, err := schema.Structural(schema.Gen2(), to)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE movies DROP COLUMN favorite"}, stmts)
}

func TestStructural_RefusesNotNullWithoutDefault(t *testing.T) {
	to := schema.Gen2()
	to.Entities[0].Attributes = append(to.Entities[0].Attributes, schema.Attribute{Name: "director", Type: schema.TypeText})

	_, err := schema.Structural(schema.Gen2(), to)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrNotLightweight))
}

func TestRebuild_RelationalSwap(t *testing.T) {
	stmts, err := schema.Rebuild(schema.Gen3(), schema.Gen4())
	require.NoError(t, err)
	require.Len(t, stmts, 5)
	assert.Equal(t, "DROP TABLE IF EXISTS movies", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE movies")
	assert.Contains(t, stmts[1], "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, stmts[2], "CREATE TABLE actors")
	assert.Contains(t, stmts[2], "name TEXT NOT NULL UNIQUE")
	assert.Contains(t, stmts[3], "CREATE TABLE movie_actors")
	assert.Contains(t, stmts[3], "PRIMARY KEY (movie_id, actor_id)")
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_movie_actors_actor_id ON movie_actors(actor_id)", stmts[4])
}

func TestModel_JoinTables(t *testing.T) {
	assert.Empty(t, schema.Gen3().JoinTables())

	joins := schema.Gen4().JoinTables()
	require.Len(t, joins, 1)
	assert.Equal(t, schema.TableMovieActors, joins[0].Name)
	assert.Equal(t, schema.ColumnPosition, joins[0].OrderColumn)
}

func TestModel_Deriver(t *testing.T) {
	assert.Equal(t, "le samouraï", schema.Gen3().Deriver().Derive("Le Samouraï"))
	assert.Equal(t, "samouraï", schema.Gen4().Deriver().Derive("Le Samouraï"))
}

// TestStatements_ApplyToSQLite executes every stage's statements in order
// against a real database.
func TestStatements_ApplyToSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	defer db.Close()

	prev := schema.Empty()
	for _, next := range schema.Catalogue() {
		stmts, err := schema.Rebuild(prev, next)
		require.NoError(t, err, "%s -> %s", prev.Version, next.Version)
		for _, stmt := range stmts {
			_, err := db.Exec(stmt)
			require.NoError(t, err, "executing %q", stmt)
		}
		prev = next
	}

	for _, table := range []string{schema.TableMovies, schema.TableActors, schema.TableMovieActors} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %q", table)
	}
	var idx string
	for _, name := range []string{"idx_movies_sortable_title", "idx_actors_name"} {
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", name).Scan(&idx)
		require.NoError(t, err, "index %q", name)
	}
}
