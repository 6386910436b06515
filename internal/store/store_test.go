package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fieldtrack/internal/domain/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	updated := time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC)
	seed := []job.Job{
		{ID: "job-2", Title: "Replace modem", Address: "12 Main St", Status: job.StatusAssigned, UpdatedAt: updated},
		{ID: "job-1", Title: "Fix router", Address: "9 Oak Ave", Status: job.StatusInProgress, UpdatedAt: updated},
	}
	if err := s.ReplaceAll(ctx, seed); err != nil {
		t.Fatalf("replace: %v", err)
	}

	jobs, err := s.Jobs(ctx)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("job count = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "job-1" || jobs[1].ID != "job-2" {
		t.Errorf("ordering = %s, %s, want id order", jobs[0].ID, jobs[1].ID)
	}
	if jobs[0].Status != job.StatusInProgress {
		t.Errorf("status = %s, want %s", jobs[0].Status, job.StatusInProgress)
	}
	if !jobs[0].UpdatedAt.Equal(updated) {
		t.Errorf("updatedAt = %v, want %v", jobs[0].UpdatedAt, updated)
	}
}

func TestReplaceAllSwapsSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceAll(ctx, []job.Job{{ID: "job-1", Status: job.StatusAssigned}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.ReplaceAll(ctx, []job.Job{{ID: "job-2", Status: job.StatusAccepted}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	jobs, err := s.Jobs(ctx)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-2" {
		t.Errorf("jobs = %v, want only job-2", jobs)
	}
}

func TestUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j := job.Job{ID: "job-1", Title: "Fix router", Status: job.StatusAccepted, UpdatedAt: time.Now()}
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("insert: %v", err)
	}

	j.Status = job.StatusCompleted
	if err := s.Upsert(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	jobs, err := s.Jobs(ctx)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(jobs))
	}
	if jobs[0].Status != job.StatusCompleted {
		t.Errorf("status = %s, want %s", jobs[0].Status, job.StatusCompleted)
	}
}

func TestEmptySnapshot(t *testing.T) {
	s := openTestStore(t)
	jobs, err := s.Jobs(context.Background())
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %v, want empty", jobs)
	}
}
