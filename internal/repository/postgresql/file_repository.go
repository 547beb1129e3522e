package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetpipe/internal/entity"
)

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func (r *FileRepository) Create(ctx context.Context, f *entity.SourceFile) error {
	const q = `
INSERT INTO source_files (id, user_id, original_name, path, selected_sheet, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, q,
		f.ID, f.UserID, f.OriginalName, f.Path, f.SelectedSheet, f.CreatedAt, f.ExpiresAt)
	return err
}

func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceFile, error) {
	const q = `
SELECT id, user_id, original_name, path, selected_sheet, created_at, expires_at
FROM source_files
WHERE id = $1;
`
	var f entity.SourceFile
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&f.ID,
		&f.UserID,
		&f.OriginalName,
		&f.Path,
		&f.SelectedSheet,
		&f.CreatedAt,
		&f.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}
