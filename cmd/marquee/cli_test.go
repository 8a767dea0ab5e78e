package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hyperengineering/marquee"
	"github.com/hyperengineering/marquee/internal/library"
)

// testEnv points the CLI at a temporary library and resets global flag
// state. It returns the database path.
func testEnv(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("MARQUEE_HOME", home)
	t.Setenv("MARQUEE_LIBRARY", "")
	t.Setenv("MARQUEE_DB_PATH", "")
	t.Setenv("MARQUEE_SCHEMA_VERSION", "")

	off := false
	forceTTY = &off
	resetFlags(rootCmd)
	cfgFile = ""
	v = newViper()
	bindGlobalFlags()

	t.Cleanup(func() {
		forceTTY = nil
		resetFlags(rootCmd)
	})
	return filepath.Join(home, "test.db")
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("marquee %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeMovies(t *testing.T, out string) []marquee.Movie {
	t.Helper()
	var movies []marquee.Movie
	if err := json.Unmarshal([]byte(out), &movies); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	return movies
}

func TestCLI_Help_ListsAllCommands(t *testing.T) {
	testEnv(t)

	out := mustRun(t, "--help")
	for _, name := range []string{"list", "add", "favorite", "rename", "rm", "cast", "actors", "stats", "migrate", "status", "export", "import", "version", "libraries", "mcp"} {
		if !strings.Contains(out, name) {
			t.Errorf("--help output should contain %q command", name)
		}
	}
}

func TestCLI_AddAndList(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "add", "The First Movie", "--cast", "Ann", "--cast", "Bob")
	mustRun(t, "--db-path", db, "add", "A Second Movie")
	mustRun(t, "--db-path", db, "add", "El Third Movie", "--cast", "Bob")

	movies := decodeMovies(t, mustRun(t, "--db-path", db, "--json", "list", "--order", "asc"))
	var titles []string
	for _, m := range movies {
		titles = append(titles, m.Title)
	}
	want := "The First Movie,A Second Movie,El Third Movie"
	if got := strings.Join(titles, ","); got != want {
		t.Errorf("ascending titles = %s, want %s", got, want)
	}
	if got := strings.Join(movies[0].Cast, ","); got != "Ann,Bob" {
		t.Errorf("cast = %s, want Ann,Bob", got)
	}

	movies = decodeMovies(t, mustRun(t, "--db-path", db, "--json", "list", "--order", "desc", "--search", "th"))
	if len(movies) != 2 || movies[0].Title != "El Third Movie" {
		t.Errorf("descending search = %+v, want El Third Movie then The First Movie", movies)
	}

	out := mustRun(t, "--db-path", db, "list", "--search", "second")
	if !strings.Contains(out, "A Second Movie") || strings.Contains(out, "The First Movie") {
		t.Errorf("human list output:\n%s", out)
	}
}

func TestCLI_List_InvalidOrder(t *testing.T) {
	db := testEnv(t)

	_, err := run(t, "--db-path", db, "list", "--order", "sideways")
	if err == nil || !strings.Contains(err.Error(), "invalid order") {
		t.Errorf("error = %v, want invalid order", err)
	}
}

func TestCLI_FavoriteRenameRemove(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "add", "Heat")

	var m marquee.Movie
	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", db, "--json", "favorite", "1")), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !m.Favorite {
		t.Error("favorite should set the flag")
	}

	out := mustRun(t, "--db-path", db, "rename", "1", "The Irishman")
	if !strings.Contains(out, "Renamed The Irishman") || !strings.Contains(out, "irishman") {
		t.Errorf("rename output:\n%s", out)
	}

	mustRun(t, "--db-path", db, "rm", "1")
	if movies := decodeMovies(t, mustRun(t, "--db-path", db, "--json", "list")); len(movies) != 0 {
		t.Errorf("list after rm = %+v, want empty", movies)
	}

	if _, err := run(t, "--db-path", db, "rm", "1"); err == nil {
		t.Error("rm of a missing movie should fail")
	}
}

func TestCLI_CastAndActors(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "add", "Le Samouraï")
	mustRun(t, "--db-path", db, "cast", "add", "1", "Alain Delon")
	mustRun(t, "--db-path", db, "cast", "add", "1", "François Périer")
	mustRun(t, "--db-path", db, "cast", "rm", "1", "François Périer")

	var actors []marquee.Actor
	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", db, "--json", "actors")), &actors); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(actors) != 2 {
		t.Fatalf("actors = %+v, want 2 (removal keeps the actor)", actors)
	}

	out := mustRun(t, "--db-path", db, "--json", "actors", "--prune")
	if !strings.Contains(out, `"pruned": 1`) {
		t.Errorf("prune output = %s, want 1 pruned", out)
	}

	out = mustRun(t, "--db-path", db, "actors", "1")
	if !strings.Contains(out, "Alain Delon") || !strings.Contains(out, "Le Samouraï") {
		t.Errorf("actor output:\n%s", out)
	}
}

func TestCLI_Stats(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "add", "Heat", "--cast", "Al Pacino", "--cast", "Robert De Niro")

	var st marquee.Stats
	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", db, "--json", "stats")), &st); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if st.Movies != 1 || st.Actors != 2 || st.Links != 2 || !st.Relational {
		t.Errorf("stats = %+v", st)
	}

	out := mustRun(t, "--db-path", db, "stats")
	if !strings.Contains(out, "Movies:     1") {
		t.Errorf("stats output:\n%s", out)
	}
}

func TestCLI_MigrateAndStatus(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "migrate", "--to", "1.1.0")

	var st marquee.MigrationStatus
	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", db, "--json", "status")), &st); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if st.Current != "1.1.0" || len(st.Pending) != 3 {
		t.Errorf("status = %+v, want 1.1.0 with 3 pending", st)
	}

	mustRun(t, "--db-path", db, "--schema-version", "1.1.0", "add", "Heat", "--cast", "Al Pacino")

	out := mustRun(t, "--db-path", db, "migrate", "--backup")
	if !strings.Contains(out, "Migrated 1.1.0 to "+marquee.LatestSchemaVersion()) {
		t.Errorf("migrate output:\n%s", out)
	}
	if _, err := os.Stat(library.BackupPath(db, "1.1.0")); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	movies := decodeMovies(t, mustRun(t, "--db-path", db, "--json", "list"))
	if len(movies) != 1 || len(movies[0].Cast) != 1 || movies[0].Cast[0] != "Al Pacino" {
		t.Errorf("movies after migrate = %+v", movies)
	}

	out = mustRun(t, "--db-path", db, "migrate")
	if !strings.Contains(out, "already at") {
		t.Errorf("second migrate output:\n%s", out)
	}
}

func TestCLI_Migrate_Downgrade(t *testing.T) {
	db := testEnv(t)

	mustRun(t, "--db-path", db, "migrate")
	if _, err := run(t, "--db-path", db, "migrate", "--to", "1.0.0"); err == nil {
		t.Error("migrating to an older generation should fail")
	}
}

func TestCLI_ExportImport(t *testing.T) {
	db := testEnv(t)
	other := filepath.Join(filepath.Dir(db), "other.db")
	doc := filepath.Join(filepath.Dir(db), "movies.json")

	mustRun(t, "--db-path", db, "add", "Heat", "--cast", "Al Pacino")
	mustRun(t, "--db-path", db, "add", "Ronin", "--cast", "Robert De Niro")
	mustRun(t, "--db-path", db, "export", "-o", doc)

	out := mustRun(t, "--db-path", other, "import", doc, "--dry-run")
	if !strings.Contains(out, "Would import 2 of 2") {
		t.Errorf("dry run output:\n%s", out)
	}
	if movies := decodeMovies(t, mustRun(t, "--db-path", other, "--json", "list")); len(movies) != 0 {
		t.Errorf("dry run wrote %d movies", len(movies))
	}

	var res marquee.ImportResult
	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", other, "--json", "import", doc)), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.Created != 2 || res.ActorsCreated != 2 {
		t.Errorf("import = %+v, want 2 movies and 2 actors", res)
	}

	if err := json.Unmarshal([]byte(mustRun(t, "--db-path", other, "--json", "import", doc)), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.Created != 0 || res.Skipped != 2 {
		t.Errorf("second import = %+v, want all skipped", res)
	}
}

func TestCLI_ExportSQLite(t *testing.T) {
	db := testEnv(t)
	dest := filepath.Join(filepath.Dir(db), "copy.db")

	mustRun(t, "--db-path", db, "add", "Heat")
	if _, err := run(t, "--db-path", db, "export", "--format", "sqlite"); err == nil {
		t.Error("sqlite export without --output should fail")
	}
	mustRun(t, "--db-path", db, "export", "--format", "sqlite", "-o", dest)

	movies := decodeMovies(t, mustRun(t, "--db-path", dest, "--json", "list"))
	if len(movies) != 1 || movies[0].Title != "Heat" {
		t.Errorf("copy = %+v, want Heat", movies)
	}
}

func TestCLI_Libraries(t *testing.T) {
	testEnv(t)

	if out := mustRun(t, "libraries"); !strings.Contains(out, "No libraries found.") {
		t.Errorf("empty libraries output:\n%s", out)
	}

	mustRun(t, "--library", "films", "add", "Heat")
	mustRun(t, "--library", "family/kids", "stats")

	var ids []string
	if err := json.Unmarshal([]byte(mustRun(t, "--json", "libraries")), &ids); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if strings.Join(ids, ",") != "family/kids,films" {
		t.Errorf("libraries = %v, want family/kids,films", ids)
	}
}

func TestVersion_Human_ShowsVersionInfo(t *testing.T) {
	testEnv(t)

	out := mustRun(t, "version")
	for _, want := range []string{"marquee ", "commit:", "schema: " + marquee.LatestSchemaVersion()} {
		if !strings.Contains(out, want) {
			t.Errorf("version output should contain %q:\n%s", want, out)
		}
	}
}

func TestVersion_JSON(t *testing.T) {
	testEnv(t)

	var info versionInfo
	if err := json.Unmarshal([]byte(mustRun(t, "--json", "version")), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Version != version || info.Go == "" {
		t.Errorf("version info = %+v", info)
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		field, order string
		wantField    marquee.SortField
		wantDir      marquee.Direction
		wantErr      bool
	}{
		{"", "", marquee.SortNone, marquee.Unordered, false},
		{"title", "asc", marquee.SortTitle, marquee.Ascending, false},
		{"", "DESC", marquee.SortNone, marquee.Descending, false},
		{"year", "", 0, 0, true},
		{"title", "up", 0, 0, true},
	}
	for _, tt := range tests {
		f, d, err := parseSort(tt.field, tt.order)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSort(%q, %q) error = %v", tt.field, tt.order, err)
			continue
		}
		if !tt.wantErr && (f != tt.wantField || d != tt.wantDir) {
			t.Errorf("parseSort(%q, %q) = %v, %v", tt.field, tt.order, f, d)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	for in, want := range map[int64]string{512: "512 B", 2048: "2.0 KB", 5 << 20: "5.0 MB"} {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
