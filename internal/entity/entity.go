// Package entity implements row operations on the relational generations:
// movies, actors and the ordered movie_actors association.
//
// Functions take a Querier so they run unchanged inside a migration
// transaction or a store mutation.
package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/schema"
	"github.com/hyperengineering/marquee/internal/sortkey"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Actor is a stored actor row.
type Actor struct {
	ID   int64
	Name string
}

// ConstraintError reports a write rejected by a uniqueness constraint.
type ConstraintError struct {
	Table string
	Value string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("entity: %s: unique constraint violated by %q: %v", e.Table, e.Value, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsUniqueViolation reports whether err is a SQLite uniqueness failure.
func IsUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// FindActor returns the actor named exactly name.
func FindActor(ctx context.Context, q Querier, name string) (Actor, bool, error) {
	query, args, err := sq.Select(schema.ColumnID, schema.ColumnName).
		From(schema.TableActors).
		Where(sq.Eq{schema.ColumnName: name}).
		ToSql()
	if err != nil {
		return Actor{}, false, err
	}
	var a Actor
	err = q.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Actor{}, false, nil
	}
	if err != nil {
		return Actor{}, false, fmt.Errorf("entity: find actor: %w", err)
	}
	return a, true, nil
}

// InsertActor creates an actor. A duplicate name yields *ConstraintError.
func InsertActor(ctx context.Context, q Querier, name string) (Actor, error) {
	query, args, err := sq.Insert(schema.TableActors).
		Columns(schema.ColumnName).
		Values(name).
		ToSql()
	if err != nil {
		return Actor{}, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return Actor{}, &ConstraintError{Table: schema.TableActors, Value: name, Err: err}
		}
		return Actor{}, fmt.Errorf("entity: insert actor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Actor{}, fmt.Errorf("entity: insert actor: %w", err)
	}
	return Actor{ID: id, Name: name}, nil
}

// FetchOrCreateActor resolves name to its actor, creating it when absent.
// created reports whether a new row was inserted. A uniqueness failure on
// insert is resolved by re-reading the existing row.
func FetchOrCreateActor(ctx context.Context, q Querier, name string) (a Actor, created bool, err error) {
	a, ok, err := FindActor(ctx, q, name)
	if err != nil || ok {
		return a, false, err
	}
	a, err = InsertActor(ctx, q, name)
	var cerr *ConstraintError
	if errors.As(err, &cerr) {
		a, ok, err = FindActor(ctx, q, name)
		if err == nil && !ok {
			err = fmt.Errorf("entity: actor %q vanished after constraint failure: %w", name, cerr)
		}
		return a, false, err
	}
	return a, err == nil, err
}

// ListActors returns every actor ordered by name.
func ListActors(ctx context.Context, q Querier) ([]Actor, error) {
	query, args, err := sq.Select(schema.ColumnID, schema.ColumnName).
		From(schema.TableActors).
		OrderBy(schema.ColumnName).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanActors(ctx, q, query, args)
}

// GetActor returns the actor with the given id.
func GetActor(ctx context.Context, q Querier, id int64) (Actor, bool, error) {
	query, args, err := sq.Select(schema.ColumnID, schema.ColumnName).
		From(schema.TableActors).
		Where(sq.Eq{schema.ColumnID: id}).
		ToSql()
	if err != nil {
		return Actor{}, false, err
	}
	var a Actor
	err = q.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Actor{}, false, nil
	}
	if err != nil {
		return Actor{}, false, fmt.Errorf("entity: get actor: %w", err)
	}
	return a, true, nil
}

// InsertMovie creates a movie row and returns its surrogate key.
func InsertMovie(ctx context.Context, q Querier, title, sortable string, favorite bool) (int64, error) {
	query, args, err := sq.Insert(schema.TableMovies).
		Columns(schema.ColumnTitle, schema.ColumnSortableTitle, schema.ColumnFavorite).
		Values(title, sortable, favorite).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("entity: insert movie: %w", err)
	}
	return res.LastInsertId()
}

// Link associates an actor with a movie at position. It reports false when
// the pair was already linked; the existing position is kept.
func Link(ctx context.Context, q Querier, movieID, actorID int64, position int) (bool, error) {
	query, args, err := sq.Insert(schema.TableMovieActors).
		Options("OR IGNORE").
		Columns(schema.ColumnMovieID, schema.ColumnActorID, schema.ColumnPosition).
		Values(movieID, actorID, position).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("entity: link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("entity: link: %w", err)
	}
	return n > 0, nil
}

// Unlink removes the association of one actor from one movie. It reports
// whether a row was removed.
func Unlink(ctx context.Context, q Querier, movieID, actorID int64) (bool, error) {
	query, args, err := sq.Delete(schema.TableMovieActors).
		Where(sq.Eq{schema.ColumnMovieID: movieID, schema.ColumnActorID: actorID}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("entity: unlink: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("entity: unlink: %w", err)
	}
	return n > 0, nil
}

// NextPosition returns the position after the last actor of a movie.
func NextPosition(ctx context.Context, q Querier, movieID int64) (int, error) {
	query, args, err := sq.Select("COALESCE(MAX(" + schema.ColumnPosition + ") + 1, 0)").
		From(schema.TableMovieActors).
		Where(sq.Eq{schema.ColumnMovieID: movieID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var next int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&next); err != nil {
		return 0, fmt.Errorf("entity: next position: %w", err)
	}
	return next, nil
}

// MovieActors returns a movie's actors in billing order.
func MovieActors(ctx context.Context, q Querier, movieID int64) ([]Actor, error) {
	query, args, err := sq.Select("a."+schema.ColumnID, "a."+schema.ColumnName).
		From(schema.TableMovieActors + " ma").
		Join(schema.TableActors + " a ON a." + schema.ColumnID + " = ma." + schema.ColumnActorID).
		Where(sq.Eq{"ma." + schema.ColumnMovieID: movieID}).
		OrderBy("ma." + schema.ColumnPosition).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanActors(ctx, q, query, args)
}

// ActorMovieIDs returns the ids of the movies an actor appears in, oldest first.
func ActorMovieIDs(ctx context.Context, q Querier, actorID int64) ([]int64, error) {
	query, args, err := sq.Select(schema.ColumnMovieID).
		From(schema.TableMovieActors).
		Where(sq.Eq{schema.ColumnActorID: actorID}).
		OrderBy(schema.ColumnMovieID).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity: actor movies: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("entity: actor movies: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImportResult counts the rows one ImportRecord call wrote.
type ImportResult struct {
	MovieID       int64
	ActorsCreated int
	Links         int
}

// ImportRecord recreates one interchange record as a movie with its cast.
// The sortable title is recomputed with d. Cast entries resolve to existing
// actors by exact name; a name repeated within one cast is linked once at
// its first position.
func ImportRecord(ctx context.Context, q Querier, rec interchange.Record, d sortkey.Deriver) (ImportResult, error) {
	var res ImportResult
	id, err := InsertMovie(ctx, q, rec.Title, d.Derive(rec.Title), rec.Favorite)
	if err != nil {
		return res, err
	}
	res.MovieID = id
	for i, name := range rec.Actors {
		a, created, err := FetchOrCreateActor(ctx, q, name)
		if err != nil {
			return res, err
		}
		if created {
			res.ActorsCreated++
		}
		linked, err := Link(ctx, q, id, a.ID, i)
		if err != nil {
			return res, err
		}
		if linked {
			res.Links++
		}
	}
	return res, nil
}

func scanActors(ctx context.Context, q Querier, query string, args []any) ([]Actor, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity: query actors: %w", err)
	}
	defer rows.Close()

	actors := []Actor{}
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("entity: scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
