package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finbase/receipt-insights/internal/jobs"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	done := make(chan string, 1)
	handler := func(ctx context.Context, job jobs.Job) error {
		done <- job.GetID()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestReceiptJob{SourceRef: "a.jpg"}
	if err := q.PublishIngestReceipt(ctx, job); err != nil {
		t.Fatalf("PublishIngestReceipt() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish must assign a job ID")
	}

	select {
	case id := <-done:
		if id != job.JobID {
			t.Errorf("handled job %s, want %s", id, job.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not consumed")
	}

	// Completion status reaches the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetJob(ctx, job.JobID)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if got.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %v, want completed", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueue_RetriesUntilMaxThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.IngestReceiptJob{SourceRef: "a.jpg", MaxRetries: 1}
	if err := q.PublishIngestReceipt(ctx, job); err != nil {
		t.Fatalf("PublishIngestReceipt() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := store.GetJob(ctx, job.JobID)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if got.Status == jobs.JobStatusFailed {
			if got.RetryCount != 1 {
				t.Errorf("RetryCount = %d, want 1", got.RetryCount)
			}
			if got.Error == "" {
				t.Error("failed job must record the error")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %v, want failed", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2 (initial + one retry)", got)
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := q.PublishIngestReceipt(context.Background(), &jobs.IngestReceiptJob{SourceRef: "a.jpg"})
	if err == nil {
		t.Error("publish on a closed queue must fail")
	}
}

func TestStore_ListJobsFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	save := func(id, ref string, status jobs.JobStatus) {
		t.Helper()
		err := store.SaveJob(ctx, &jobs.IngestReceiptJob{JobID: id, SourceRef: ref, Status: status})
		if err != nil {
			t.Fatalf("SaveJob() error = %v", err)
		}
	}

	save("j1", "a.jpg", jobs.JobStatusCompleted)
	save("j2", "a.jpg", jobs.JobStatusFailed)
	save("j3", "b.jpg", jobs.JobStatusCompleted)

	got, err := store.ListJobs(ctx, jobs.JobFilter{SourceRef: "a.jpg"})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("source filter returned %d jobs, want 2", len(got))
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("status filter returned %d jobs, want 2", len(got))
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limit returned %d jobs, want 1", len(got))
	}
}

func TestStore_SavedJobsAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.IngestReceiptJob{JobID: "j1", SourceRef: "a.jpg", Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job mutated through caller's pointer: %v", got.Status)
	}
}
