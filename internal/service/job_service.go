package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/pipeline"
	"sheetpipe/internal/repository/postgresql"
)

// Repository port (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, fileID uuid.UUID, userID string, operations json.RawMessage) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error
}

type FileRepository interface {
	Create(ctx context.Context, f *entity.SourceFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceFile, error)
}

// Small enqueue-only port so callers do not depend on the full Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type JobService struct {
	jobs  JobRepository
	files FileRepository
	queue JobQueue
	now   func() time.Time
}

func NewJobService(jobs JobRepository, files FileRepository, queue JobQueue) *JobService {
	return &JobService{jobs: jobs, files: files, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

type ExecuteRequest struct {
	UserID     string
	FileID     string
	Operations json.RawMessage
}

type ExecuteResult struct {
	JobID  uuid.UUID
	TaskID string
}

// Execute validates a pipeline submission and creates the PENDING job.
// Validation failures never create a job; a file owned by another principal
// (or unknown, or expired) reads as not found, never as forbidden.
func (s *JobService) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if req.FileID == "" {
		return ExecuteResult{}, pipeline.NewValidationError("file_id is required")
	}

	ops, err := pipeline.ValidateOperations(req.Operations)
	if err != nil {
		return ExecuteResult{}, err
	}
	normalized, err := json.Marshal(ops)
	if err != nil {
		return ExecuteResult{}, err
	}

	file, err := s.getOwnedFile(ctx, req.UserID, req.FileID)
	if err != nil {
		return ExecuteResult{}, err
	}

	id, err := s.jobs.Create(ctx, file.ID, req.UserID, normalized)
	if err != nil {
		return ExecuteResult{}, err
	}

	// Attach the backend task handle before the worker can pick the job up.
	taskID := uuid.NewString()
	if err := s.jobs.SetTaskID(ctx, id, taskID); err != nil {
		return ExecuteResult{}, err
	}
	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		return ExecuteResult{}, err
	}

	return ExecuteResult{JobID: id, TaskID: taskID}, nil
}

// GetOwnedJob loads a job and enforces ownership. Any miss, including a job
// that belongs to someone else, returns postgresql.ErrNotFound so callers
// cannot probe for other principals' jobs.
func (s *JobService) GetOwnedJob(ctx context.Context, userID, jobID string) (*entity.Job, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, postgresql.ErrNotFound
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, postgresql.ErrNotFound
	}
	return job, nil
}

func (s *JobService) getOwnedFile(ctx context.Context, userID, fileID string) (*entity.SourceFile, error) {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return nil, postgresql.ErrNotFound
	}
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, postgresql.ErrNotFound
	}
	if file.Expired(s.now()) {
		return nil, postgresql.ErrNotFound
	}
	return file, nil
}
