package marquee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/interchange"
	"github.com/hyperengineering/marquee/internal/schema"
)

// errDryRun aborts the import transaction after counting.
var errDryRun = errors.New("dry run")

// ImportJSON reads an interchange document and adds its movies. Actors are
// fetched or created by exact name. The import is one transaction: a
// failing record leaves the store unchanged. With dryRun the result is
// computed and nothing is written.
//
// Note: This holds the store's write lock for the whole import.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	switch strategy {
	case MergeStrategySkip, MergeStrategyAppend:
	case "":
		strategy = MergeStrategySkip
	default:
		return nil, fmt.Errorf("import: unknown merge strategy %q", strategy)
	}

	result := &ImportResult{}
	err := s.write(ctx, func(tx *sql.Tx, c changes) error {
		_, err := interchange.Decode(ctx, r, func(rec interchange.Record) error {
			result.Total++
			if err := validateRecord(rec); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("movie %d: %v", result.Total, err))
				result.Skipped++
				return nil
			}
			if strategy == MergeStrategySkip {
				dup, err := s.importDuplicate(ctx, tx, rec)
				if err != nil {
					return err
				}
				if dup {
					result.Skipped++
					return nil
				}
			}
			if err := s.importRecord(ctx, tx, c, rec, result); err != nil {
				return fmt.Errorf("movie %q: %w", rec.Title, err)
			}
			result.Created++
			return nil
		})
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Store) importRecord(ctx context.Context, tx *sql.Tx, c changes, rec interchange.Record, result *ImportResult) error {
	if s.shape.relational {
		res, err := entity.ImportRecord(ctx, tx, rec, s.shape.deriver)
		if err != nil {
			return err
		}
		result.ActorsCreated += res.ActorsCreated
		touchImport(c, res)
		return nil
	}

	id := uuid.NewString()
	if u, err := uuid.Parse(rec.ID); err == nil {
		exists, err := s.movieExists(ctx, tx, u.String())
		if err != nil {
			return err
		}
		if !exists {
			id = u.String()
		}
	}
	if err := s.insertEmbedded(ctx, tx, id, rec.Title, rec.Favorite, rec.Actors); err != nil {
		return err
	}
	c.touch(EntityMovie)
	return nil
}

func validateRecord(rec interchange.Record) error {
	if err := validateTitle(rec.Title); err != nil {
		return err
	}
	for _, name := range rec.Actors {
		if err := validateName(name); err != nil {
			return err
		}
	}
	return nil
}

// importDuplicate reports whether rec is already in the store: by UUID
// when both sides carry one, otherwise by exact title.
func (s *Store) importDuplicate(ctx context.Context, tx *sql.Tx, rec interchange.Record) (bool, error) {
	if !s.shape.relational && rec.ID != "" {
		if u, err := uuid.Parse(rec.ID); err == nil {
			exists, err := s.movieExists(ctx, tx, u.String())
			if err != nil || exists {
				return exists, err
			}
		}
	}

	query, args, err := sq.Select("COUNT(*)").From(schema.TableMovies).Where(sq.Eq{schema.ColumnTitle: rec.Title}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return n > 0, nil
}
