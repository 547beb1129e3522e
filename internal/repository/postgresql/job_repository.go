package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetpipe/internal/entity"
)

var ErrNotFound = errors.New("not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, fileID uuid.UUID, userID string, operations json.RawMessage) (uuid.UUID, error) {
	if len(operations) == 0 {
		operations = json.RawMessage(`[]`)
	}

	const q = `
INSERT INTO pipeline_jobs (file_id, user_id, status, operations)
VALUES ($1, $2, 'PENDING', $3)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, fileID, userID, operations).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, file_id, user_id, operations, status, error, task_id, output_path,
       created_at, updated_at, started_at, finished_at
FROM pipeline_jobs
WHERE id = $1;
`

	var (
		job           entity.Job
		statusText    string
		operationsRaw []byte
		errText       *string
		taskID        *string
		outputPath    *string
		startedAt     *time.Time
		finishedAt    *time.Time
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.FileID,
		&job.UserID,
		&operationsRaw,
		&statusText,
		&errText,
		&taskID,
		&outputPath,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	job.Operations = json.RawMessage(operationsRaw)
	job.Error = errText
	job.TaskID = taskID
	job.OutputPath = outputPath
	job.StartedAt = startedAt
	job.FinishedAt = finishedAt

	return &job, nil
}

func (r *JobRepository) SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	const q = `UPDATE pipeline_jobs SET task_id=$2, updated_at=now() WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRunning commits PENDING -> RUNNING. The WHERE guard makes the
// transition monotonic across workers: a redelivered or raced job hits zero
// rows and surfaces as an invalid transition, never a second start.
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID, taskID string, startedAt time.Time) error {
	const q = `
UPDATE pipeline_jobs
SET status='RUNNING', started_at=$2, task_id=COALESCE(NULLIF($3,''), task_id), updated_at=now()
WHERE id=$1 AND status='PENDING';
`
	tag, err := r.pool.Exec(ctx, q, id, startedAt, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusRunning)
	}
	return nil
}

// MarkSucceeded commits RUNNING -> SUCCEEDED: output attached, error cleared,
// in one write.
func (r *JobRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, outputPath string, finishedAt time.Time) error {
	const q = `
UPDATE pipeline_jobs
SET status='SUCCEEDED', output_path=$2, error=NULL, finished_at=$3, updated_at=now()
WHERE id=$1 AND status='RUNNING';
`
	tag, err := r.pool.Exec(ctx, q, id, outputPath, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusSucceeded)
	}
	return nil
}

// MarkFailed commits the FAILED terminal state with the error text and no
// output. Allowed from any non-terminal status.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errText string, finishedAt time.Time) error {
	const q = `
UPDATE pipeline_jobs
SET status='FAILED', error=$2, finished_at=$3, updated_at=now()
WHERE id=$1 AND status IN ('PENDING','RUNNING');
`
	tag, err := r.pool.Exec(ctx, q, id, errText, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusFailed)
	}
	return nil
}

// transitionConflict distinguishes a missing job from a guarded update that
// matched no rows because the job is in the wrong status.
func (r *JobRepository) transitionConflict(ctx context.Context, id uuid.UUID, target entity.JobStatus) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", entity.ErrInvalidTransition, job.Status, target)
}
