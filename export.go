package marquee

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/library"
)

// MergeStrategy defines how ImportJSON treats movies already in the store.
type MergeStrategy string

const (
	// MergeStrategySkip skips movies whose title, or UUID in stores that
	// embed the cast, is already present.
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyAppend always creates a new movie.
	MergeStrategyAppend MergeStrategy = "append"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total         int      `json:"total"`
	Created       int      `json:"created"`
	Skipped       int      `json:"skipped"`
	ActorsCreated int      `json:"actors_created"`
	Errors        []string `json:"errors,omitempty"`
}

// ExportJSON writes the library to w in the interchange format, movies in
// insertion order. Movie IDs are included when the store keys movies by
// UUID.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	movies, err := s.loadMovies(ctx, s.db, nil, true, true)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	enc, err := interchange.NewEncoder(w, interchange.Header{
		Format:        interchange.Format,
		SourceVersion: s.SchemaVersion(),
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, m := range movies {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := interchange.Record{Title: m.Title, Favorite: m.Favorite, Actors: m.Cast}
		if !s.shape.relational {
			rec.ID = m.ID
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return enc.Close()
}

// ExportSQLite copies the database file to destPath after folding the WAL
// into it.
func (s *Store) ExportSQLite(ctx context.Context, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint WAL: %w", err)
	}
	if _, err := library.Backup(s.path, destPath); err != nil {
		return fmt.Errorf("export sqlite: %w", err)
	}
	return nil
}
