package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tacivo/tacivo/internal/config"
	"github.com/tacivo/tacivo/internal/store"
)

func waitForStatus(t *testing.T, job *Job, timeout time.Duration) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status.Done() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %q", job.ID, job.Snapshot().Status)
	return JobSnapshot{}
}

func TestOrchestrator_ProcessesJobs(t *testing.T) {
	st := &fakeStore{docs: map[string]store.Document{"a": doc("a", "A", "text")}}
	w := newTestWorker(st, &fakeClaude{replies: []string{playbookJSON}}, 0)
	o := NewOrchestrator(config.Config{WorkerCount: 2, MaxQueueSize: 10, JobTTL: time.Hour}, w, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("u1", "", []string{"a"})
	if err := o.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Error("expected job to be registered")
	}
	if snap := waitForStatus(t, job, 2*time.Second); snap.Status != StatusCompleted {
		t.Errorf("expected completed, got %q", snap.Status)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	w := newTestWorker(&fakeStore{}, &fakeClaude{replies: []string{playbookJSON}}, 0)
	// Not started: nothing drains the queue.
	o := NewOrchestrator(config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}, w, discardLogger())

	if err := o.Submit(NewJob("u1", "", []string{"a"})); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewJob("u1", "", []string{"a"})
	err := o.Submit(second)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if second.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %q", second.Snapshot().Status)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	w := newTestWorker(&fakeStore{}, &fakeClaude{replies: []string{playbookJSON}}, 0)
	o := NewOrchestrator(config.Config{WorkerCount: 1, MaxQueueSize: 4, JobTTL: time.Hour}, w, discardLogger())
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	if err := o.Submit(NewJob("u1", "", nil)); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
