package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/sheet"
)

// Ports the engine drives. Implementations: repository/postgresql for the
// stores, sheet.DiskStore for workbooks, service.TaskStateStore for progress.

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID, taskID string, startedAt time.Time) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, outputPath string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string, finishedAt time.Time) error
}

type FileRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceFile, error)
}

type SheetSource interface {
	ExtractSheet(path, sheetName string) (*sheet.Sheet, error)
}

type OutputStore interface {
	SaveOutput(jobID uuid.UUID, filename string, ws *sheet.Sheet) (string, error)
}

// ProgressReporter receives execution-backend state changes: STARTED,
// per-operation PROGRESS, and the terminal SUCCESS/FAILURE. Reporting is
// best-effort; a reporting failure never fails the job.
type ProgressReporter interface {
	SetState(ctx context.Context, taskID, state string, meta any) error
}

// Engine executes one stored pipeline job end-to-end: PENDING -> RUNNING,
// apply the validated operations in order against a private sheet snapshot,
// and commit the output only if every operation succeeded. SUCCEEDED and
// FAILED are terminal; the engine never retries a failed job.
type Engine struct {
	jobs    JobRepo
	files   FileRepo
	sheets  SheetSource
	outputs OutputStore
	tasks   ProgressReporter
	now     func() time.Time
}

func NewEngine(jobs JobRepo, files FileRepo, sheets SheetSource, outputs OutputStore, tasks ProgressReporter) *Engine {
	return &Engine{
		jobs:    jobs,
		files:   files,
		sheets:  sheets,
		outputs: outputs,
		tasks:   tasks,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the job to a terminal state. The returned error is the
// propagated execution failure for the worker's operational log; the job
// record itself is already FAILED by the time it is returned.
func (e *Engine) Execute(ctx context.Context, jobID uuid.UUID) error {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	taskID := ""
	if job.TaskID != nil {
		taskID = *job.TaskID
	}

	started, err := job.Start(taskID, e.now())
	if err != nil {
		// Redelivered after a crash, or raced by another worker: the job is
		// past PENDING, so there is nothing left to do here.
		log.Printf("[engine] job_id=%s status=%s skip reason=%v", jobID, job.Status, err)
		return nil
	}
	if err := e.jobs.MarkRunning(ctx, jobID, taskID, *started.StartedAt); err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			log.Printf("[engine] job_id=%s skip reason=%v", jobID, err)
			return nil
		}
		return fmt.Errorf("mark running %s: %w", jobID, err)
	}
	e.report(ctx, taskID, "STARTED", nil)

	outputPath, runErr := e.run(ctx, &started, taskID)
	if runErr != nil {
		e.report(ctx, taskID, "FAILURE", map[string]any{"error": runErr.Error()})
		if mErr := e.jobs.MarkFailed(ctx, jobID, runErr.Error(), e.now()); mErr != nil {
			log.Printf("[engine] job_id=%s mark_failed error=%v", jobID, mErr)
		}
		return runErr
	}

	if err := e.jobs.MarkSucceeded(ctx, jobID, outputPath, e.now()); err != nil {
		return fmt.Errorf("mark succeeded %s: %w", jobID, err)
	}
	e.report(ctx, taskID, "SUCCESS", map[string]any{"job_id": jobID.String(), "output_file": filepath.Base(outputPath)})
	return nil
}

// run applies the full pipeline and writes the output. Any error aborts
// immediately: no partial application beyond the operation in flight (each
// handler is internally atomic) and no output artifact of any kind.
func (e *Engine) run(ctx context.Context, job *entity.Job, taskID string) (string, error) {
	// Defense in depth: the list was validated at submission, but execution
	// never trusts stored state blindly.
	ops, err := ValidateOperations(job.Operations)
	if err != nil {
		return "", err
	}

	file, err := e.files.GetByID(ctx, job.FileID)
	if err != nil {
		return "", fmt.Errorf("load source file %s: %w", job.FileID, err)
	}

	ws, err := e.sheets.ExtractSheet(file.Path, file.SelectedSheet)
	if err != nil {
		return "", err
	}

	total := len(ops)
	for i, op := range ops {
		e.reportProgress(ctx, taskID, i+1, total, op, "start")

		decoded, err := DecodeOp(op)
		if err != nil {
			return "", err
		}
		if err := decoded.Apply(ws, file.SelectedSheet); err != nil {
			return "", err
		}

		e.reportProgress(ctx, taskID, i+1, total, op, "done")
	}

	return e.outputs.SaveOutput(job.ID, outputFilename(file.OriginalName, file.ID, e.now()), ws)
}

func (e *Engine) report(ctx context.Context, taskID, state string, meta any) {
	if taskID == "" {
		return
	}
	if err := e.tasks.SetState(ctx, taskID, state, meta); err != nil {
		log.Printf("[engine] task_id=%s set_state=%s error=%v", taskID, state, err)
	}
}

func (e *Engine) reportProgress(ctx context.Context, taskID string, index, total int, op entity.Operation, phase string) {
	e.report(ctx, taskID, "PROGRESS", map[string]any{
		"index": index,
		"total": total,
		"op":    map[string]any{"id": op.ID, "operationId": op.OperationID},
		"phase": phase,
	})
}

// outputFilename derives "<originalBase>_<timestamp>.xlsx" from the uploaded
// file's name, falling back to the file id when the name has no usable stem.
func outputFilename(originalName string, fileID uuid.UUID, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	if base == "" || base == "." {
		base = fileID.String()
	}
	return base + "_" + now.Format("20060102_150405") + ".xlsx"
}
