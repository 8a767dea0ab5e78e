package marquee

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/schema"
)

// Execute runs spec against the store. An empty result is an empty slice.
// Failures are *QueryError.
func (s *Store) Execute(ctx context.Context, spec FetchSpec) ([]Movie, error) {
	movies, _, err := s.execute(ctx, spec)
	return movies, err
}

// execute also returns the write sequence the result was read at.
func (s *Store) execute(ctx context.Context, spec FetchSpec) ([]Movie, uint64, error) {
	if err := spec.Validate(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, &QueryError{Op: "execute", Err: ErrStoreClosed}
	}

	movies, err := s.loadMovies(ctx, s.db, nil, spec.Prefetch, spec.Ordered())
	if err != nil {
		return nil, s.seq, &QueryError{Op: "execute", Err: err}
	}
	movies = filterByTitle(movies, spec.Search)
	if spec.Ordered() {
		sortBySortableTitle(movies, spec.Direction)
	}
	return movies, s.seq, nil
}

// Fetch is Execute for presentation code: a failure is logged and yields
// an empty list.
func (s *Store) Fetch(ctx context.Context, spec FetchSpec) []Movie {
	movies, err := s.Execute(ctx, spec)
	if err != nil {
		s.logger.Warn("fetch failed", zap.Error(err))
		return []Movie{}
	}
	return movies
}

// loadMovies reads the candidate rows. When ordered, rows come back in
// insertion order so the stable sort breaks ties deterministically.
func (s *Store) loadMovies(ctx context.Context, q entity.Querier, where sq.Sqlizer, prefetch, ordered bool) ([]Movie, error) {
	switch {
	case s.shape.relational && prefetch:
		return s.loadMoviesWithActors(ctx, q, where, ordered)
	case s.shape.relational:
		return s.loadRelationalMovies(ctx, q, where, ordered)
	default:
		return s.loadEmbeddedMovies(ctx, q, where, ordered)
	}
}

func (s *Store) loadMoviesWithActors(ctx context.Context, q entity.Querier, where sq.Sqlizer, ordered bool) ([]Movie, error) {
	b := sq.Select(
		"m."+schema.ColumnID, "m."+schema.ColumnTitle, "m."+schema.ColumnSortableTitle, "m."+schema.ColumnFavorite,
		"a."+schema.ColumnID, "a."+schema.ColumnName, "ma."+schema.ColumnPosition,
	).
		From(schema.TableMovies + " m").
		LeftJoin(schema.TableMovieActors + " ma ON ma." + schema.ColumnMovieID + " = m." + schema.ColumnID).
		LeftJoin(schema.TableActors + " a ON a." + schema.ColumnID + " = ma." + schema.ColumnActorID)
	if where != nil {
		b = b.Where(where)
	}
	if ordered {
		b = b.OrderBy("m.rowid", "ma."+schema.ColumnPosition)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	type billed struct {
		actor    Actor
		position int64
	}
	var (
		movies []Movie
		casts  [][]billed
		index  = make(map[int64]int)
	)
	for rows.Next() {
		var (
			id        int64
			m         Movie
			actorID   sql.NullInt64
			actorName sql.NullString
			position  sql.NullInt64
		)
		if err := rows.Scan(&id, &m.Title, &m.SortableTitle, &m.Favorite, &actorID, &actorName, &position); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		i, seen := index[id]
		if !seen {
			m.ID = strconv.FormatInt(id, 10)
			i = len(movies)
			index[id] = i
			movies = append(movies, m)
			casts = append(casts, nil)
		}
		if actorID.Valid {
			casts[i] = append(casts[i], billed{
				actor:    Actor{ID: actorID.Int64, Name: actorName.String},
				position: position.Int64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}

	for i := range movies {
		cast := casts[i]
		sort.SliceStable(cast, func(a, b int) bool { return cast[a].position < cast[b].position })
		movies[i].Actors = make([]Actor, len(cast))
		movies[i].Cast = make([]string, len(cast))
		for j, c := range cast {
			movies[i].Actors[j] = c.actor
			movies[i].Cast[j] = c.actor.Name
		}
	}
	if movies == nil {
		movies = []Movie{}
	}
	return movies, nil
}

func (s *Store) loadRelationalMovies(ctx context.Context, q entity.Querier, where sq.Sqlizer, ordered bool) ([]Movie, error) {
	b := sq.Select("m."+schema.ColumnID, "m."+schema.ColumnTitle, "m."+schema.ColumnSortableTitle, "m."+schema.ColumnFavorite).
		From(schema.TableMovies + " m")
	if where != nil {
		b = b.Where(where)
	}
	if ordered {
		b = b.OrderBy("m.rowid")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := []Movie{}
	for rows.Next() {
		var (
			id int64
			m  Movie
		)
		if err := rows.Scan(&id, &m.Title, &m.SortableTitle, &m.Favorite); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}

func (s *Store) loadEmbeddedMovies(ctx context.Context, q entity.Querier, where sq.Sqlizer, ordered bool) ([]Movie, error) {
	cols := []string{"m." + schema.ColumnID, "m." + schema.ColumnTitle, "m." + schema.ColumnCastNames}
	if s.shape.sortable {
		cols = append(cols, "m."+schema.ColumnSortableTitle)
	}
	if s.shape.favorite {
		cols = append(cols, "m."+schema.ColumnFavorite)
	}
	b := sq.Select(cols...).From(schema.TableMovies + " m")
	if where != nil {
		b = b.Where(where)
	}
	if ordered {
		b = b.OrderBy("m.rowid")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := []Movie{}
	for rows.Next() {
		var (
			m        Movie
			castJSON string
		)
		dest := []any{&m.ID, &m.Title, &castJSON}
		if s.shape.sortable {
			dest = append(dest, &m.SortableTitle)
		}
		if s.shape.favorite {
			dest = append(dest, &m.Favorite)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		if m.Cast, err = decodeCast(castJSON); err != nil {
			return nil, fmt.Errorf("movie %s: %w", m.ID, err)
		}
		if !s.shape.sortable {
			m.SortableTitle = s.shape.deriver.Derive(m.Title)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}

func decodeCast(raw string) ([]string, error) {
	cast := []string{}
	if raw == "" {
		return cast, nil
	}
	if err := json.Unmarshal([]byte(raw), &cast); err != nil {
		return nil, fmt.Errorf("decode cast: %w", err)
	}
	if cast == nil {
		cast = []string{}
	}
	return cast, nil
}

func encodeCast(cast []string) (string, error) {
	if cast == nil {
		cast = []string{}
	}
	b, err := json.Marshal(cast)
	if err != nil {
		return "", fmt.Errorf("encode cast: %w", err)
	}
	return string(b), nil
}

// filterByTitle keeps movies whose title contains text under the root
// locale, ignoring case and diacritics.
func filterByTitle(movies []Movie, text string) []Movie {
	if text == "" {
		return movies
	}
	pattern := search.New(language.Und, search.IgnoreCase, search.IgnoreDiacritics).CompileString(text)
	kept := movies[:0]
	for _, m := range movies {
		if start, _ := pattern.IndexString(m.Title); start >= 0 {
			kept = append(kept, m)
		}
	}
	return kept
}

// sortBySortableTitle orders movies by sortable title with the Unicode root
// collation. Equal keys keep their input order in both directions.
func sortBySortableTitle(movies []Movie, dir Direction) {
	col := collate.New(language.Und)
	sort.SliceStable(movies, func(i, j int) bool {
		c := col.CompareString(movies[i].SortableTitle, movies[j].SortableTitle)
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}
