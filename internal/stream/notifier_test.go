package stream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/service"
	"sheetpipe/internal/stream"
)

// ---- fakes ----

type fakeJobs struct {
	mu  sync.Mutex
	job *entity.Job
}

func (f *fakeJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil || f.job.ID != id {
		return nil, errors.New("not found")
	}
	cp := *f.job
	return &cp, nil
}

func (f *fakeJobs) set(job *entity.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job = job
}

type fakeTasks struct {
	mu   sync.Mutex
	snap service.TaskSnapshot
}

func (f *fakeTasks) GetState(ctx context.Context, taskID string) (service.TaskSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeTasks) set(snap service.TaskSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

type frame struct {
	event string
	data  map[string]any
}

func parseFrames(t *testing.T, raw string) []frame {
	t.Helper()
	var frames []frame
	for _, block := range strings.Split(raw, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		lines := strings.SplitN(block, "\n", 2)
		if len(lines) != 2 {
			t.Fatalf("malformed frame: %q", block)
		}
		ev := strings.TrimPrefix(lines[0], "event: ")
		var data map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &data); err != nil {
			t.Fatalf("malformed frame data %q: %v", lines[1], err)
		}
		frames = append(frames, frame{event: ev, data: data})
	}
	return frames
}

func terminalJob(status entity.JobStatus, errText string) *entity.Job {
	taskID := "task-1"
	j := &entity.Job{
		ID:     uuid.New(),
		UserID: "user-1",
		Status: status,
		TaskID: &taskID,
	}
	if errText != "" {
		j.Error = &errText
	}
	return j
}

// ---- tests ----

func TestNotifier_AlreadySucceededJob(t *testing.T) {
	job := terminalJob(entity.StatusSucceeded, "")
	jobs := &fakeJobs{job: job}
	n := stream.NewNotifier(jobs, &fakeTasks{})
	n.Poll = time.Millisecond

	var buf bytes.Buffer
	if err := n.Run(context.Background(), &buf, job, "/api/pipeline/execution/"+job.ID.String()+"/download"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	frames := parseFrames(t, buf.String())
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames (connected, job_status, succeeded), got %d: %+v", len(frames), frames)
	}
	if frames[0].event != "connected" || frames[1].event != "job_status" || frames[2].event != "succeeded" {
		t.Fatalf("unexpected event sequence: %s %s %s", frames[0].event, frames[1].event, frames[2].event)
	}
	// No transient edges for states never observed.
	for _, f := range frames[1:] {
		if f.data["status"] != string(entity.StatusSucceeded) {
			t.Fatalf("expected only SUCCEEDED status in frames, got %v", f.data["status"])
		}
	}
	if frames[2].data["download_url"] == "" {
		t.Fatal("expected download_url in succeeded event")
	}
}

func TestNotifier_FailedJobCarriesError(t *testing.T) {
	job := terminalJob(entity.StatusFailed, "Rename collision: header already contains 'City'")
	jobs := &fakeJobs{job: job}
	n := stream.NewNotifier(jobs, &fakeTasks{})
	n.Poll = time.Millisecond

	var buf bytes.Buffer
	if err := n.Run(context.Background(), &buf, job, "unused"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	frames := parseFrames(t, buf.String())
	last := frames[len(frames)-1]
	if last.event != "failed" {
		t.Fatalf("expected terminal failed event, got %s", last.event)
	}
	if !strings.Contains(last.data["error"].(string), "Rename collision") {
		t.Fatalf("expected stored error text in failed event, got %v", last.data["error"])
	}
}

func TestNotifier_EdgeTriggeredStatusAndTaskState(t *testing.T) {
	taskID := "task-1"
	job := &entity.Job{ID: uuid.New(), UserID: "user-1", Status: entity.StatusRunning, TaskID: &taskID}
	jobs := &fakeJobs{job: job}
	tasks := &fakeTasks{snap: service.TaskSnapshot{State: "STARTED"}}

	n := stream.NewNotifier(jobs, tasks)
	n.Poll = time.Millisecond

	var buf syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- n.Run(context.Background(), &buf, job, "dl")
	}()

	// Let several polls pass on an unchanged RUNNING job, then move the task
	// state once, then finish the job.
	time.Sleep(20 * time.Millisecond)
	tasks.set(service.TaskSnapshot{State: "PROGRESS", Meta: json.RawMessage(`{"index":1,"total":1,"phase":"start"}`)})
	time.Sleep(20 * time.Millisecond)
	finished := *job
	finished.Status = entity.StatusSucceeded
	jobs.set(&finished)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not terminate")
	}

	frames := parseFrames(t, buf.String())
	counts := map[string]int{}
	for _, f := range frames {
		counts[f.event]++
	}
	// One RUNNING edge and one SUCCEEDED edge, despite many polls.
	if counts["job_status"] != 2 {
		t.Fatalf("expected 2 job_status edges, got %d (%+v)", counts["job_status"], frames)
	}
	// STARTED and PROGRESS, suppressed while unchanged.
	if counts["task_state"] != 2 {
		t.Fatalf("expected 2 task_state edges, got %d (%+v)", counts["task_state"], frames)
	}
	if counts["succeeded"] != 1 {
		t.Fatalf("expected 1 succeeded event, got %d", counts["succeeded"])
	}
}

func TestNotifier_StopsOnClientDisconnect(t *testing.T) {
	taskID := "task-1"
	job := &entity.Job{ID: uuid.New(), UserID: "user-1", Status: entity.StatusRunning, TaskID: &taskID}
	jobs := &fakeJobs{job: job}

	n := stream.NewNotifier(jobs, &fakeTasks{snap: service.TaskSnapshot{State: "STARTED"}})
	n.Poll = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var buf syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- n.Run(ctx, &buf, job, "dl")
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier kept running after client disconnect")
	}
}

// syncBuffer guards a bytes.Buffer written from the notifier goroutine and
// read from the test goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
