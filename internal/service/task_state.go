package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaskSnapshot is the execution backend's view of one task: a coarse state
// (PENDING/STARTED/PROGRESS/SUCCESS/FAILURE) plus JSON progress metadata.
type TaskSnapshot struct {
	State string          `json:"state"`
	Meta  json.RawMessage `json:"meta"`
}

// TaskStateStore keeps per-task state in a Redis hash. The engine writes it
// as operations progress; the SSE notifier polls it. Entries expire on their
// own, the store is never the source of truth for job status.
type TaskStateStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTaskStateStore(rdb *redis.Client, prefix string) *TaskStateStore {
	if prefix == "" {
		prefix = "tasks:state:"
	}
	return &TaskStateStore{rdb: rdb, prefix: prefix, ttl: 24 * time.Hour}
}

func (s *TaskStateStore) key(taskID string) string {
	return s.prefix + taskID
}

func (s *TaskStateStore) SetState(ctx context.Context, taskID, state string, meta any) error {
	fields := map[string]any{"state": state}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		fields["meta"] = string(b)
	} else {
		fields["meta"] = ""
	}

	key := s.key(taskID)
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// GetState returns the last reported snapshot. A task that has not reported
// yet reads as PENDING with no metadata.
func (s *TaskStateStore) GetState(ctx context.Context, taskID string) (TaskSnapshot, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(taskID)).Result()
	if err != nil {
		return TaskSnapshot{}, err
	}
	if len(vals) == 0 {
		return TaskSnapshot{State: "PENDING"}, nil
	}
	snap := TaskSnapshot{State: vals["state"]}
	if m := vals["meta"]; m != "" {
		snap.Meta = json.RawMessage(m)
	}
	return snap, nil
}
