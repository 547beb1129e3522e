// Package stream turns job-record changes and execution-backend progress into
// a Server-Sent Events stream. The notifier only observes: it never mutates
// job state.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/service"
)

type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

type TaskStateReader interface {
	GetState(ctx context.Context, taskID string) (service.TaskSnapshot, error)
}

// Notifier runs one polling/diffing observation loop per stream. Events are
// edge-triggered: job_status and task_state frames are suppressed while
// nothing changed since the last emission. The loop ends at a terminal job
// status or when ctx is cancelled (client disconnect).
type Notifier struct {
	jobs  JobReader
	tasks TaskStateReader

	// Poll is the fixed interval between observations.
	Poll time.Duration
}

func NewNotifier(jobs JobReader, tasks TaskStateReader) *Notifier {
	return &Notifier{jobs: jobs, tasks: tasks, Poll: 500 * time.Millisecond}
}

// Run streams events for one job until it reaches SUCCEEDED or FAILED.
// Frame format: "event: <name>\ndata: <json>\n\n".
func (n *Notifier) Run(ctx context.Context, w io.Writer, job *entity.Job, downloadURL string) error {
	var (
		lastJobStatus entity.JobStatus
		lastTaskState string
		lastTaskMeta  json.RawMessage
	)

	if err := n.emit(w, "connected", map[string]any{
		"job_id":  job.ID.String(),
		"task_id": strDeref(job.TaskID),
		"status":  job.Status,
	}); err != nil {
		return err
	}

	for {
		fresh, err := n.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		job = fresh

		if job.Status != lastJobStatus {
			lastJobStatus = job.Status
			if err := n.emit(w, "job_status", map[string]any{
				"job_id": job.ID.String(),
				"status": job.Status,
				"error":  strDeref(job.Error),
			}); err != nil {
				return err
			}
		}

		if job.Status == entity.StatusSucceeded {
			return n.emit(w, "succeeded", map[string]any{
				"job_id":       job.ID.String(),
				"status":       job.Status,
				"download_url": downloadURL,
			})
		}
		if job.Status == entity.StatusFailed {
			return n.emit(w, "failed", map[string]any{
				"job_id": job.ID.String(),
				"status": job.Status,
				"error":  strDeref(job.Error),
			})
		}

		if job.TaskID != nil {
			snap, err := n.tasks.GetState(ctx, *job.TaskID)
			if err != nil {
				return err
			}
			if snap.State != lastTaskState || !bytes.Equal(snap.Meta, lastTaskMeta) {
				lastTaskState = snap.State
				lastTaskMeta = snap.Meta
				if err := n.emit(w, "task_state", map[string]any{
					"job_id":  job.ID.String(),
					"task_id": *job.TaskID,
					"state":   snap.State,
					"meta":    rawOrNull(snap.Meta),
				}); err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.Poll):
		}
	}
}

func (n *Notifier) emit(w io.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func strDeref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func rawOrNull(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
