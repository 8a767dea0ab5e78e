package migrate

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/schema"
)

// RecomputeSortableTitles rewrites sortable_title for every movie using the
// target generation's article set.
func RecomputeSortableTitles(ctx context.Context, tx *sql.Tx, env *Env) error {
	d := env.Stage.To.Deriver()

	rows, err := tx.QueryContext(ctx, "SELECT "+schema.ColumnID+", "+schema.ColumnTitle+" FROM "+schema.TableMovies)
	if err != nil {
		return fmt.Errorf("read titles: %w", err)
	}
	type titled struct {
		id    any
		title string
	}
	var movies []titled
	for rows.Next() {
		var m titled
		if err := rows.Scan(&m.id, &m.title); err != nil {
			rows.Close()
			return fmt.Errorf("scan title: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("read titles: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read titles: %w", err)
	}

	for _, m := range movies {
		query, args, err := sq.Update(schema.TableMovies).
			Set(schema.ColumnSortableTitle, d.Derive(m.title)).
			Where(sq.Eq{schema.ColumnID: m.id}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update sortable title: %w", err)
		}
	}
	env.Logger.Info("recomputed sortable titles", zap.Int("movies", len(movies)))
	return nil
}

// ExportEmbeddedCast writes every movie of an embedded-cast store to the
// export artifact and then deletes the movie rows. The artifact is in place
// before any row is deleted; a stale artifact from an earlier run is
// overwritten.
func ExportEmbeddedCast(ctx context.Context, tx *sql.Tx, env *Env) error {
	from, ok := env.Stage.From.Entity(schema.EntityMovie)
	if !ok {
		return fmt.Errorf("source generation %s has no %s entity", env.Stage.From.Version, schema.EntityMovie)
	}
	cols := []string{schema.ColumnTitle, schema.ColumnCastNames}
	hasFavorite := from.HasAttribute(schema.ColumnFavorite)
	if hasFavorite {
		cols = append(cols, schema.ColumnFavorite)
	}

	query, args, err := sq.Select(cols...).From(from.Table).OrderBy("rowid").ToSql()
	if err != nil {
		return err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read movies: %w", err)
	}
	defer rows.Close()

	header := interchange.Header{
		Format:        interchange.Format,
		SourceVersion: env.Stage.From.Version.String(),
		RunID:         env.RunID,
	}
	var count int
	err = interchange.WriteFunc(env.ExportPath, header, func(enc *interchange.Encoder) error {
		for rows.Next() {
			var (
				rec  interchange.Record
				cast string
			)
			dest := []any{&rec.Title, &cast}
			if hasFavorite {
				dest = append(dest, &rec.Favorite)
			}
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scan movie: %w", err)
			}
			if err := json.Unmarshal([]byte(cast), &rec.Actors); err != nil {
				return fmt.Errorf("decode cast of %q: %w", rec.Title, err)
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		count = enc.Count()
		return rows.Err()
	})
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+from.Table); err != nil {
		return fmt.Errorf("delete exported movies: %w", err)
	}
	env.Logger.Info("exported movies", zap.Int("movies", count), zap.String("path", env.ExportPath))
	return nil
}

// ImportRelational recreates the exported movies in a relational store:
// fresh surrogate keys, recomputed sortable titles, actors resolved by
// exact name and linked in cast order. The artifact is removed once the
// import has committed.
func ImportRelational(ctx context.Context, tx *sql.Tx, env *Env) error {
	f, err := os.Open(env.ExportPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, env.ExportPath)
	}
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	d := env.Stage.To.Deriver()
	var movies, actors int
	h, err := interchange.Decode(ctx, bufio.NewReader(f), func(rec interchange.Record) error {
		res, err := entity.ImportRecord(ctx, tx, rec, d)
		if err != nil {
			return fmt.Errorf("import %q: %w", rec.Title, err)
		}
		movies++
		actors += res.ActorsCreated
		return nil
	})
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	if h.SourceVersion != "" && h.SourceVersion != env.Stage.From.Version.String() {
		return fmt.Errorf("export was written by %s, stage expects %s", h.SourceVersion, env.Stage.From.Version)
	}

	path := env.ExportPath
	env.AfterCommit(func() error { return interchange.Remove(path) })
	env.Logger.Info("reimported movies",
		zap.Int("movies", movies),
		zap.Int("actors_created", actors),
		zap.String("export_run_id", h.RunID),
	)
	return nil
}
