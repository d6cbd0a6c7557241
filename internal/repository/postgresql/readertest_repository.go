package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inference-task-worker/internal/entity"
)

// ReaderTestRepository keeps the per-job processed counters.
type ReaderTestRepository struct {
	pool *pgxpool.Pool
}

func NewReaderTestRepository(pool *pgxpool.Pool) *ReaderTestRepository {
	return &ReaderTestRepository{pool: pool}
}

// IncrementAndCheck counts taskID towards readerTestID and reports whether
// this call completed the reader test. A task already counted is not
// counted again, and completion is reported at most once per reader test.
func (r *ReaderTestRepository) IncrementAndCheck(ctx context.Context, readerTestID, taskID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin increment: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO reader_test_counted_tasks (reader_test_id, task_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING;`, readerTestID, taskID)
	if err != nil {
		return false, fmt.Errorf("record counted task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO reader_tests (id, processed_count)
VALUES ($1, 1)
ON CONFLICT (id) DO UPDATE SET
    processed_count = reader_tests.processed_count + 1,
    updated_at = NOW();`, readerTestID); err != nil {
		return false, fmt.Errorf("increment processed count: %w", err)
	}

	done, err := markCompleted(ctx, tx, readerTestID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit increment: %w", err)
	}
	return done, nil
}

// SetTotal registers how many tasks the reader test has. It reports true
// when the already processed tasks complete the reader test.
func (r *ReaderTestRepository) SetTotal(ctx context.Context, readerTestID string, total int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin set total: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO reader_tests (id, total_count)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET
    total_count = EXCLUDED.total_count,
    updated_at = NOW();`, readerTestID, total); err != nil {
		return false, fmt.Errorf("set total count: %w", err)
	}

	done, err := markCompleted(ctx, tx, readerTestID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit set total: %w", err)
	}
	return done, nil
}

func (r *ReaderTestRepository) Progress(ctx context.Context, readerTestID string) (*entity.ReaderTest, error) {
	const q = `
SELECT id, total_count, processed_count, completed_at, created_at, updated_at
FROM reader_tests
WHERE id = $1;
`
	var rt entity.ReaderTest
	if err := r.pool.QueryRow(ctx, q, readerTestID).Scan(
		&rt.ID,
		&rt.TotalCount,
		&rt.ProcessedCount,
		&rt.CompletedAt,
		&rt.CreatedAt,
		&rt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reader test: %w", err)
	}
	return &rt, nil
}

// markCompleted stamps completed_at the first time processed reaches total.
// completed_at doubles as the guard that keeps the signal single.
func markCompleted(ctx context.Context, tx pgx.Tx, readerTestID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
UPDATE reader_tests
SET completed_at = NOW()
WHERE id = $1
  AND completed_at IS NULL
  AND total_count IS NOT NULL
  AND processed_count >= total_count;`, readerTestID)
	if err != nil {
		return false, fmt.Errorf("mark reader test completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
