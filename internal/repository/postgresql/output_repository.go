package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inference-task-worker/internal/entity"
)

type OutputRepository struct {
	pool *pgxpool.Pool
}

func NewOutputRepository(pool *pgxpool.Pool) *OutputRepository {
	return &OutputRepository{pool: pool}
}

// Set writes the output record for (reader test, task), replacing any
// earlier record for the same pair.
func (r *OutputRepository) Set(ctx context.Context, rec *entity.OutputRecord) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	meta := rec.Meta
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	const q = `
INSERT INTO task_outputs (reader_test_id, task_id, image_id, result, meta)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (reader_test_id, task_id) DO UPDATE SET
    image_id = EXCLUDED.image_id,
    result = EXCLUDED.result,
    meta = EXCLUDED.meta,
    updated_at = NOW();
`
	if _, err := r.pool.Exec(ctx, q, rec.ReaderTestID, rec.TaskID, rec.ImageID, result, []byte(meta)); err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	return nil
}

func (r *OutputRepository) Get(ctx context.Context, readerTestID, taskID string) (*entity.OutputRecord, error) {
	const q = `
SELECT reader_test_id, task_id, image_id, result, meta, created_at, updated_at
FROM task_outputs
WHERE reader_test_id = $1 AND task_id = $2;
`
	return scanOutput(r.pool.QueryRow(ctx, q, readerTestID, taskID))
}

// GetByTaskID finds the output of a task without knowing its reader test.
func (r *OutputRepository) GetByTaskID(ctx context.Context, taskID string) (*entity.OutputRecord, error) {
	const q = `
SELECT reader_test_id, task_id, image_id, result, meta, created_at, updated_at
FROM task_outputs
WHERE task_id = $1
ORDER BY updated_at DESC
LIMIT 1;
`
	return scanOutput(r.pool.QueryRow(ctx, q, taskID))
}

func scanOutput(row pgx.Row) (*entity.OutputRecord, error) {
	var (
		rec    entity.OutputRecord
		result []byte
		meta   []byte
	)
	if err := row.Scan(&rec.ReaderTestID, &rec.TaskID, &rec.ImageID, &result, &meta, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get output: %w", err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	rec.Meta = json.RawMessage(meta)
	return &rec, nil
}
