package marquee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/schema"
)

// InsertMovie adds a movie with its cast in billing order. Actors are
// resolved by exact name and created when missing; a name repeated in cast
// is kept once at its first position.
func (s *Store) InsertMovie(ctx context.Context, title string, cast []string) (*Movie, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	for _, name := range cast {
		if err := validateName(name); err != nil {
			return nil, err
		}
	}

	var movie *Movie
	err := s.write(ctx, func(tx *sql.Tx, c changes) error {
		var key any
		if s.shape.relational {
			res, err := entity.ImportRecord(ctx, tx, interchange.Record{Title: title, Actors: cast}, s.shape.deriver)
			if err != nil {
				return fmt.Errorf("store: insert movie: %w", err)
			}
			key = res.MovieID
			touchImport(c, res)
		} else {
			id := uuid.NewString()
			if err := s.insertEmbedded(ctx, tx, id, title, false, cast); err != nil {
				return err
			}
			key = id
			c.touch(EntityMovie)
		}

		var err error
		movie, err = s.movieIn(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movie, nil
}

// ToggleFavorite flips a movie's favorite flag.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (*Movie, error) {
	if !s.shape.favorite {
		return nil, ErrUnsupported
	}
	key, err := s.movieKey(id)
	if err != nil {
		return nil, err
	}

	var movie *Movie
	err = s.write(ctx, func(tx *sql.Tx, c changes) error {
		n, err := execCount(ctx, tx, sq.Update(schema.TableMovies).
			Set(schema.ColumnFavorite, sq.Expr("NOT "+schema.ColumnFavorite)).
			Where(sq.Eq{schema.ColumnID: key}))
		if err != nil {
			return fmt.Errorf("store: toggle favorite: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		c.touch(EntityMovie)
		movie, err = s.movieIn(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movie, nil
}

// RenameMovie changes a movie's title and recomputes its sortable title.
func (s *Store) RenameMovie(ctx context.Context, id, title string) (*Movie, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	key, err := s.movieKey(id)
	if err != nil {
		return nil, err
	}

	var movie *Movie
	err = s.write(ctx, func(tx *sql.Tx, c changes) error {
		b := sq.Update(schema.TableMovies).
			Set(schema.ColumnTitle, title).
			Where(sq.Eq{schema.ColumnID: key})
		if s.shape.sortable {
			b = b.Set(schema.ColumnSortableTitle, s.shape.deriver.Derive(title))
		}
		n, err := execCount(ctx, tx, b)
		if err != nil {
			return fmt.Errorf("store: rename movie: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		c.touch(EntityMovie)
		movie, err = s.movieIn(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movie, nil
}

// DeleteMovie removes a movie and its cast links. Actors are kept; see
// PruneActors.
func (s *Store) DeleteMovie(ctx context.Context, id string) error {
	key, err := s.movieKey(id)
	if err != nil {
		return err
	}

	return s.write(ctx, func(tx *sql.Tx, c changes) error {
		if s.shape.relational {
			_, err := execCount(ctx, tx, sq.Delete(schema.TableMovieActors).Where(sq.Eq{schema.ColumnMovieID: key}))
			if err != nil {
				return fmt.Errorf("store: delete movie links: %w", err)
			}
		}
		n, err := execCount(ctx, tx, sq.Delete(schema.TableMovies).Where(sq.Eq{schema.ColumnID: key}))
		if err != nil {
			return fmt.Errorf("store: delete movie: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		c.touch(EntityMovie)
		if s.shape.relational {
			c.touch(EntityMovieActor)
		}
		return nil
	})
}

// AddActor appends name to a movie's cast. Adding an actor already in the
// cast changes nothing.
func (s *Store) AddActor(ctx context.Context, movieID, name string) (*Movie, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	key, err := s.movieKey(movieID)
	if err != nil {
		return nil, err
	}

	var movie *Movie
	err = s.write(ctx, func(tx *sql.Tx, c changes) error {
		if s.shape.relational {
			if err := s.addRelationalActor(ctx, tx, c, key.(int64), name); err != nil {
				return err
			}
		} else {
			cast, err := s.embeddedCast(ctx, tx, key)
			if err != nil {
				return err
			}
			if !containsName(cast, name) {
				if err := s.setEmbeddedCast(ctx, tx, key, append(cast, name)); err != nil {
					return err
				}
				c.touch(EntityMovie)
			}
		}

		var err error
		movie, err = s.movieIn(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movie, nil
}

func (s *Store) addRelationalActor(ctx context.Context, tx *sql.Tx, c changes, movieID int64, name string) error {
	exists, err := s.movieExists(ctx, tx, movieID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	actor, created, err := entity.FetchOrCreateActor(ctx, tx, name)
	if err != nil {
		return fmt.Errorf("store: add actor: %w", err)
	}
	if created {
		c.touch(EntityActor)
	}
	pos, err := entity.NextPosition(ctx, tx, movieID)
	if err != nil {
		return fmt.Errorf("store: add actor: %w", err)
	}
	linked, err := entity.Link(ctx, tx, movieID, actor.ID, pos)
	if err != nil {
		return fmt.Errorf("store: add actor: %w", err)
	}
	if linked {
		c.touch(EntityMovieActor)
	}
	return nil
}

// RemoveActor drops name from a movie's cast. The actor itself is kept.
// Returns ErrNotFound when the movie does not exist or name is not in its
// cast.
func (s *Store) RemoveActor(ctx context.Context, movieID, name string) (*Movie, error) {
	key, err := s.movieKey(movieID)
	if err != nil {
		return nil, err
	}

	var movie *Movie
	err = s.write(ctx, func(tx *sql.Tx, c changes) error {
		if s.shape.relational {
			actor, found, err := entity.FindActor(ctx, tx, name)
			if err != nil {
				return fmt.Errorf("store: remove actor: %w", err)
			}
			if !found {
				return ErrNotFound
			}
			removed, err := entity.Unlink(ctx, tx, key.(int64), actor.ID)
			if err != nil {
				return fmt.Errorf("store: remove actor: %w", err)
			}
			if !removed {
				return ErrNotFound
			}
			c.touch(EntityMovieActor)
		} else {
			cast, err := s.embeddedCast(ctx, tx, key)
			if err != nil {
				return err
			}
			kept := make([]string, 0, len(cast))
			for _, n := range cast {
				if n != name {
					kept = append(kept, n)
				}
			}
			if len(kept) == len(cast) {
				return ErrNotFound
			}
			if err := s.setEmbeddedCast(ctx, tx, key, kept); err != nil {
				return err
			}
			c.touch(EntityMovie)
		}

		var err error
		movie, err = s.movieIn(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movie, nil
}

// FetchOrCreateActor returns the actor named name, creating it when absent.
// created reports which happened.
func (s *Store) FetchOrCreateActor(ctx context.Context, name string) (actor *Actor, created bool, err error) {
	if !s.shape.relational {
		return nil, false, ErrUnsupported
	}
	if err := validateName(name); err != nil {
		return nil, false, err
	}

	err = s.write(ctx, func(tx *sql.Tx, c changes) error {
		a, made, err := entity.FetchOrCreateActor(ctx, tx, name)
		if err != nil {
			return fmt.Errorf("store: fetch or create actor: %w", err)
		}
		if made {
			c.touch(EntityActor)
		}
		actor = &Actor{ID: a.ID, Name: a.Name}
		created = made
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return actor, created, nil
}

// PruneActors deletes actors that appear in no movie and returns how many
// were removed.
func (s *Store) PruneActors(ctx context.Context) (int, error) {
	if !s.shape.relational {
		return 0, ErrUnsupported
	}

	var pruned int64
	err := s.write(ctx, func(tx *sql.Tx, c changes) error {
		n, err := execCount(ctx, tx, sq.Delete(schema.TableActors).
			Where(schema.ColumnID+" NOT IN (SELECT "+schema.ColumnActorID+" FROM "+schema.TableMovieActors+")"))
		if err != nil {
			return fmt.Errorf("store: prune actors: %w", err)
		}
		if n > 0 {
			c.touch(EntityActor)
		}
		pruned = n
		return nil
	})
	return int(pruned), err
}

// Movie returns one movie with its cast.
func (s *Store) Movie(ctx context.Context, id string) (*Movie, error) {
	key, err := s.movieKey(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.movieIn(ctx, s.db, key)
}

// Actor returns one actor with the movies it appears in, oldest first.
func (s *Store) Actor(ctx context.Context, id int64) (*Actor, error) {
	if !s.shape.relational {
		return nil, ErrUnsupported
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	a, found, err := entity.GetActor(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("store: get actor: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	ids, err := entity.ActorMovieIDs(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("store: get actor: %w", err)
	}
	movies, err := s.loadMovies(ctx, s.db, sq.Eq{"m." + schema.ColumnID: ids}, false, true)
	if err != nil {
		return nil, fmt.Errorf("store: get actor movies: %w", err)
	}
	return &Actor{ID: a.ID, Name: a.Name, Movies: movies}, nil
}

// Actors lists every actor by name.
func (s *Store) Actors(ctx context.Context) ([]Actor, error) {
	if !s.shape.relational {
		return nil, ErrUnsupported
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := entity.ListActors(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("store: list actors: %w", err)
	}
	actors := make([]Actor, len(rows))
	for i, a := range rows {
		actors[i] = Actor{ID: a.ID, Name: a.Name}
	}
	return actors, nil
}

// Stats returns library counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &Stats{
		SchemaVersion: s.shape.model.Version.String(),
		Relational:    s.shape.relational,
	}
	counts := []struct {
		dest  *int
		query string
		want  bool
	}{
		{&stats.Movies, "SELECT COUNT(*) FROM " + schema.TableMovies, true},
		{&stats.Favorites, "SELECT COUNT(*) FROM " + schema.TableMovies + " WHERE " + schema.ColumnFavorite, s.shape.favorite},
		{&stats.Actors, "SELECT COUNT(*) FROM " + schema.TableActors, s.shape.relational},
		{&stats.Links, "SELECT COUNT(*) FROM " + schema.TableMovieActors, s.shape.relational},
	}
	for _, c := range counts {
		if !c.want {
			continue
		}
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
	}
	return stats, nil
}

// movieKey parses id under the open generation's identity strategy.
func (s *Store) movieKey(id string) (any, error) {
	if s.shape.relational {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q is not a movie number", ErrInvalidID, id)
		}
		return n, nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a UUID", ErrInvalidID, id)
	}
	return u.String(), nil
}

func (s *Store) movieIn(ctx context.Context, q entity.Querier, key any) (*Movie, error) {
	movies, err := s.loadMovies(ctx, q, sq.Eq{"m." + schema.ColumnID: key}, true, false)
	if err != nil {
		return nil, fmt.Errorf("store: get movie: %w", err)
	}
	if len(movies) == 0 {
		return nil, ErrNotFound
	}
	return &movies[0], nil
}

func (s *Store) movieExists(ctx context.Context, q entity.Querier, key any) (bool, error) {
	query, args, err := sq.Select("1").From(schema.TableMovies).Where(sq.Eq{schema.ColumnID: key}).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: movie exists: %w", err)
	}
	return true, nil
}

func (s *Store) insertEmbedded(ctx context.Context, q entity.Querier, id, title string, favorite bool, cast []string) error {
	castJSON, err := encodeCast(dedupeNames(cast))
	if err != nil {
		return err
	}
	cols := []string{schema.ColumnID, schema.ColumnTitle, schema.ColumnCastNames}
	vals := []any{id, title, castJSON}
	if s.shape.sortable {
		cols = append(cols, schema.ColumnSortableTitle)
		vals = append(vals, s.shape.deriver.Derive(title))
	}
	if s.shape.favorite {
		cols = append(cols, schema.ColumnFavorite)
		vals = append(vals, favorite)
	}
	if _, err := execCount(ctx, q, sq.Insert(schema.TableMovies).Columns(cols...).Values(vals...)); err != nil {
		return fmt.Errorf("store: insert movie: %w", err)
	}
	return nil
}

func (s *Store) embeddedCast(ctx context.Context, q entity.Querier, key any) ([]string, error) {
	query, args, err := sq.Select(schema.ColumnCastNames).From(schema.TableMovies).Where(sq.Eq{schema.ColumnID: key}).ToSql()
	if err != nil {
		return nil, err
	}
	var raw string
	err = q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read cast: %w", err)
	}
	return decodeCast(raw)
}

func (s *Store) setEmbeddedCast(ctx context.Context, q entity.Querier, key any, cast []string) error {
	raw, err := encodeCast(cast)
	if err != nil {
		return err
	}
	_, err = execCount(ctx, q, sq.Update(schema.TableMovies).
		Set(schema.ColumnCastNames, raw).
		Where(sq.Eq{schema.ColumnID: key}))
	if err != nil {
		return fmt.Errorf("store: write cast: %w", err)
	}
	return nil
}

func execCount(ctx context.Context, q entity.Querier, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func touchImport(c changes, res entity.ImportResult) {
	c.touch(EntityMovie)
	if res.ActorsCreated > 0 {
		c.touch(EntityActor)
	}
	if res.Links > 0 {
		c.touch(EntityMovieActor)
	}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("actor name exceeds %d bytes", MaxNameLength)
	}
	return nil
}

func containsName(cast []string, name string) bool {
	for _, n := range cast {
		if n == name {
			return true
		}
	}
	return false
}

func dedupeNames(cast []string) []string {
	out := make([]string, 0, len(cast))
	for _, n := range cast {
		if !containsName(out, n) {
			out = append(out, n)
		}
	}
	return out
}
