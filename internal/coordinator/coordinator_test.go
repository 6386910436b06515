package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"fieldtrack/internal/domain/geo"
	"fieldtrack/internal/domain/job"
	"fieldtrack/internal/location"
	"fieldtrack/internal/logger"
	"fieldtrack/internal/track"
)

// fakeSession records the tracking calls the coordinator makes.
type fakeSession struct {
	mu       sync.Mutex
	mode     track.Mode
	jobID    string
	startErr error
	stopErr  error
	starts   []string
	stops    []string
	toggles  []bool
	updates  int
}

func (s *fakeSession) StartForJob(ctx context.Context, jobID string, report location.ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, jobID)
	if s.startErr != nil {
		return s.startErr
	}
	s.mode = track.ModeTracking
	s.jobID = jobID
	return nil
}

func (s *fakeSession) StopForJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, jobID)
	if s.jobID != jobID {
		return track.ErrJobMismatch
	}
	s.mode = track.ModeOff
	s.jobID = ""
	return s.stopErr
}

func (s *fakeSession) ToggleStandalone(ctx context.Context, enabled bool, report location.ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggles = append(s.toggles, enabled)
	return nil
}

func (s *fakeSession) UpdateNow(ctx context.Context, report location.ProgressFunc) (geo.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return geo.Position{Lat: 12.9, Lng: 77.6}, nil
}

func (s *fakeSession) Mode() track.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *fakeSession) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// fakeService scripts dispatch responses. Every successful call echoes the
// job back with the server-decided status.
type fakeService struct {
	mu          sync.Mutex
	acceptErr   error
	startErr    error
	completeErr error
	jobsErr     error
	toggleErr   error
	jobs        []job.Job
	toggled     []bool
}

func (f *fakeService) AcceptJob(ctx context.Context, jobID string) (job.Job, error) {
	if f.acceptErr != nil {
		return job.Job{}, f.acceptErr
	}
	return job.Job{ID: jobID, Status: job.StatusAccepted}, nil
}

func (f *fakeService) StartJob(ctx context.Context, jobID, techID string) (job.Job, error) {
	if f.startErr != nil {
		return job.Job{}, f.startErr
	}
	return job.Job{ID: jobID, Status: job.StatusInProgress}, nil
}

func (f *fakeService) CompleteJob(ctx context.Context, jobID, techID string) (job.Job, error) {
	if f.completeErr != nil {
		return job.Job{}, f.completeErr
	}
	return job.Job{ID: jobID, Status: job.StatusCompleted}, nil
}

func (f *fakeService) MyJobs(ctx context.Context, techID string) ([]job.Job, error) {
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	return f.jobs, nil
}

func (f *fakeService) ToggleTracking(ctx context.Context, techID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, enabled)
	return f.toggleErr
}

// memCache is an in-memory snapshotCache.
type memCache struct {
	mu   sync.Mutex
	jobs map[string]job.Job
}

func newMemCache() *memCache { return &memCache{jobs: make(map[string]job.Job)} }

func (c *memCache) ReplaceAll(ctx context.Context, jobs []job.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = make(map[string]job.Job, len(jobs))
	for _, j := range jobs {
		c.jobs[j.ID] = j
	}
	return nil
}

func (c *memCache) Upsert(ctx context.Context, j job.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[j.ID] = j
	return nil
}

func (c *memCache) Jobs(ctx context.Context) ([]job.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]job.Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	return out, nil
}

func newTestCoordinator(session *fakeSession, svc *fakeService, cache snapshotCache) *Coordinator {
	return New("tech-9", session, svc, cache, logger.NewWithWriter("test", io.Discard))
}

func TestStart(t *testing.T) {
	t.Run("tracking first, then server confirmation", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeOff}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		updated, err := c.Start(context.Background(), "job-1", nil)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if updated.Status != job.StatusInProgress {
			t.Errorf("status = %s, want %s", updated.Status, job.StatusInProgress)
		}
		if c.ActiveJobID() != "job-1" {
			t.Errorf("active job = %q, want job-1", c.ActiveJobID())
		}
		if session.Mode() != track.ModeTracking {
			t.Errorf("session mode = %s, want %s", session.Mode(), track.ModeTracking)
		}
	})

	t.Run("server rejection rolls tracking back", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeOff}
		svc := &fakeService{startErr: errors.New("job not assigned to you")}
		c := newTestCoordinator(session, svc, nil)

		_, err := c.Start(context.Background(), "job-1", nil)
		if err == nil {
			t.Fatal("expected an error")
		}
		if session.Mode() != track.ModeOff {
			t.Errorf("tracking left running after a rejected start")
		}
		if len(session.stops) != 1 || session.stops[0] != "job-1" {
			t.Errorf("rollback stops = %v", session.stops)
		}
		if c.ActiveJobID() != "" {
			t.Errorf("active job = %q, want empty", c.ActiveJobID())
		}
		if len(c.Jobs()) != 0 {
			t.Errorf("job set must not be advanced optimistically, got %v", c.Jobs())
		}
	})

	t.Run("tracking failure skips the server call", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeOff, startErr: location.ErrPermissionDenied}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		_, err := c.Start(context.Background(), "job-1", nil)
		if !errors.Is(err, location.ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
		if len(c.Jobs()) != 0 {
			t.Errorf("job set changed without server confirmation")
		}
	})
}

func TestComplete(t *testing.T) {
	t.Run("stops tracking and applies the confirmed record", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeTracking, jobID: "job-1"}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		updated, err := c.Complete(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if updated.Status != job.StatusCompleted {
			t.Errorf("status = %s, want %s", updated.Status, job.StatusCompleted)
		}
		if session.Mode() != track.ModeOff {
			t.Errorf("session mode = %s, want %s", session.Mode(), track.ModeOff)
		}
	})

	t.Run("session bound to another job aborts", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeTracking, jobID: "job-2"}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		_, err := c.Complete(context.Background(), "job-1")
		if !errors.Is(err, track.ErrJobMismatch) {
			t.Fatalf("expected ErrJobMismatch, got %v", err)
		}
		if session.JobID() != "job-2" {
			t.Errorf("other job's session was torn down")
		}
	})

	t.Run("idle session still completes the job", func(t *testing.T) {
		// the job went in-progress during a previous run; this process never
		// started tracking for it
		session := &fakeSession{mode: track.ModeOff}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		updated, err := c.Complete(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if updated.Status != job.StatusCompleted {
			t.Errorf("status = %s, want %s", updated.Status, job.StatusCompleted)
		}
	})

	t.Run("unclean stop completes anyway and surfaces the error", func(t *testing.T) {
		stopErr := errors.New("final fix timed out")
		session := &fakeSession{mode: track.ModeTracking, jobID: "job-1", stopErr: stopErr}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		updated, err := c.Complete(context.Background(), "job-1")
		if !errors.Is(err, stopErr) {
			t.Fatalf("expected the stop error back, got %v", err)
		}
		if updated.Status != job.StatusCompleted {
			t.Errorf("completion must not be blocked by a stuck session, status = %s", updated.Status)
		}
	})
}

func TestAccept(t *testing.T) {
	session := &fakeSession{mode: track.ModeOff}
	svc := &fakeService{}
	c := newTestCoordinator(session, svc, nil)

	updated, err := c.Accept(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != job.StatusAccepted {
		t.Errorf("status = %s, want %s", updated.Status, job.StatusAccepted)
	}
	if len(session.starts) != 0 {
		t.Errorf("accepting must not start tracking")
	}
}

func TestToggleStandaloneMirror(t *testing.T) {
	t.Run("mirrors the flag to dispatch", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeOff}
		svc := &fakeService{}
		c := newTestCoordinator(session, svc, nil)

		if err := c.ToggleStandalone(context.Background(), true, nil); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if len(svc.toggled) != 1 || !svc.toggled[0] {
			t.Errorf("mirror calls = %v", svc.toggled)
		}
	})

	t.Run("mirror failure is not surfaced", func(t *testing.T) {
		session := &fakeSession{mode: track.ModeOff}
		svc := &fakeService{toggleErr: errors.New("503")}
		c := newTestCoordinator(session, svc, nil)

		if err := c.ToggleStandalone(context.Background(), true, nil); err != nil {
			t.Fatalf("advisory mirror failure leaked: %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	t.Run("installs the fetched snapshot and rebinds the active job", func(t *testing.T) {
		svc := &fakeService{jobs: []job.Job{
			{ID: "job-1", Status: job.StatusAssigned},
			{ID: "job-2", Status: job.StatusInProgress},
		}}
		cache := newMemCache()
		c := newTestCoordinator(&fakeSession{}, svc, cache)

		if err := c.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if c.ActiveJobID() != "job-2" {
			t.Errorf("active job = %q, want job-2", c.ActiveJobID())
		}
		if got := len(c.Jobs()); got != 2 {
			t.Errorf("job count = %d, want 2", got)
		}
		if cached, _ := cache.Jobs(context.Background()); len(cached) != 2 {
			t.Errorf("cache count = %d, want 2", len(cached))
		}
	})

	t.Run("serves the cached snapshot when dispatch is unreachable", func(t *testing.T) {
		cache := newMemCache()
		_ = cache.ReplaceAll(context.Background(), []job.Job{{ID: "job-1", Status: job.StatusAccepted}})

		svc := &fakeService{jobsErr: errors.New("connection refused")}
		c := newTestCoordinator(&fakeSession{}, svc, cache)

		err := c.Refresh(context.Background())
		if err == nil {
			t.Fatal("a stale snapshot must be flagged with the fetch error")
		}
		jobs := c.Jobs()
		if len(jobs) != 1 || jobs[0].ID != "job-1" {
			t.Errorf("jobs = %v, want the cached record", jobs)
		}
	})

	t.Run("cacheless refresh failure leaves the set empty", func(t *testing.T) {
		svc := &fakeService{jobsErr: errors.New("connection refused")}
		c := newTestCoordinator(&fakeSession{}, svc, nil)

		if err := c.Refresh(context.Background()); err == nil {
			t.Fatal("expected an error")
		}
		if len(c.Jobs()) != 0 {
			t.Errorf("jobs = %v, want empty", c.Jobs())
		}
	})
}

func TestStats(t *testing.T) {
	svc := &fakeService{jobs: []job.Job{
		{ID: "job-1", Status: job.StatusAssigned},
		{ID: "job-2", Status: job.StatusInProgress},
		{ID: "job-3", Status: job.StatusCompleted},
		{ID: "job-4", Status: job.StatusCancelled},
	}}
	c := newTestCoordinator(&fakeSession{}, svc, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	stats := c.Stats()
	if stats.Total != 4 || stats.Active != 1 || stats.Completed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
