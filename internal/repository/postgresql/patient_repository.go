package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"inference-task-worker/internal/entity"
)

// SrcIndex looks patients up by the source path of their image.
const SrcIndex = "src-index"

// indexColumns maps a secondary index name to the column it covers.
var indexColumns = map[string]string{
	SrcIndex: "image_src",
}

type PatientRepository struct {
	pool *pgxpool.Pool
}

func NewPatientRepository(pool *pgxpool.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

// QueryByIndex returns every patient whose indexed column equals key,
// oldest first. No match is an empty slice, not an error.
func (r *PatientRepository) QueryByIndex(ctx context.Context, index, key string) ([]entity.PatientMeta, error) {
	col, ok := indexColumns[index]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, index)
	}

	q := fmt.Sprintf(`SELECT id, image_src, meta FROM patients WHERE %s = $1 ORDER BY created_at, id;`, col)
	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("query patients by %s: %w", index, err)
	}
	defer rows.Close()

	var out []entity.PatientMeta
	for rows.Next() {
		var (
			p    entity.PatientMeta
			meta []byte
		)
		if err := rows.Scan(&p.ID, &p.ImageSrc, &meta); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.Meta = meta
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PatientRepository) Create(ctx context.Context, p entity.PatientMeta) error {
	meta := p.Meta
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	const q = `INSERT INTO patients (id, image_src, meta) VALUES ($1, $2, $3);`
	if _, err := r.pool.Exec(ctx, q, p.ID, p.ImageSrc, meta); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}
