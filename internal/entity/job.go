package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

var ErrInvalidTransition = errors.New("invalid job status transition")

// Operation is one validated transformation step. The list is stored raw
// (json.RawMessage on Job) and re-decoded at execution time; this struct is the
// normalized element shape the validator produces.
type Operation struct {
	ID          string         `json:"id"`
	OperationID string         `json:"operationId"`
	Params      map[string]any `json:"params"`
}

// Job is one pipeline run. Operations are immutable once the job is created;
// the execution engine is the sole mutator of status afterwards.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	FileID     uuid.UUID       `json:"file_id"`
	UserID     string          `json:"user_id"`
	Operations json.RawMessage `json:"operations"`
	Status     JobStatus       `json:"status"`
	Error      *string         `json:"error,omitempty"`
	TaskID     *string         `json:"task_id,omitempty"`
	OutputPath *string         `json:"output_path,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Start returns the RUNNING copy of the job. Only a PENDING job can start.
func (j Job) Start(taskID string, now time.Time) (Job, error) {
	if j.Status != StatusPending {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	if taskID != "" {
		j.TaskID = &taskID
	}
	return j, nil
}

// Succeed returns the SUCCEEDED copy with the output attached and error cleared.
// Only a RUNNING job can succeed; output is never set on any other path.
func (j Job) Succeed(outputPath string, now time.Time) (Job, error) {
	if j.Status != StatusRunning {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusSucceeded)
	}
	j.Status = StatusSucceeded
	j.OutputPath = &outputPath
	j.Error = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return j, nil
}

// Fail returns the FAILED copy with the error text stored and no output attached.
// Any non-terminal job can fail; terminal states are never overwritten.
func (j Job) Fail(errText string, now time.Time) (Job, error) {
	if j.Status.Terminal() {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	j.Status = StatusFailed
	j.Error = &errText
	j.FinishedAt = &now
	j.UpdatedAt = now
	return j, nil
}
