package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"fieldtrack/internal/domain/geo"
	"fieldtrack/internal/domain/job"
	"fieldtrack/internal/location"
	"fieldtrack/internal/logger"
	"fieldtrack/internal/track"
)

// trackingSession is the slice of the tracking session the coordinator
// drives. *track.Session satisfies it.
type trackingSession interface {
	StartForJob(ctx context.Context, jobID string, report location.ProgressFunc) error
	StopForJob(ctx context.Context, jobID string) error
	ToggleStandalone(ctx context.Context, enabled bool, report location.ProgressFunc) error
	UpdateNow(ctx context.Context, report location.ProgressFunc) (geo.Position, error)
	Mode() track.Mode
	JobID() string
}

// jobService is the dispatch service boundary. *dispatch.Client satisfies
// it. The service is the single source of truth for job status.
type jobService interface {
	AcceptJob(ctx context.Context, jobID string) (job.Job, error)
	StartJob(ctx context.Context, jobID, techID string) (job.Job, error)
	CompleteJob(ctx context.Context, jobID, techID string) (job.Job, error)
	MyJobs(ctx context.Context, techID string) ([]job.Job, error)
	ToggleTracking(ctx context.Context, techID string, enabled bool) error
}

// snapshotCache persists the last confirmed job set. *store.Store satisfies
// it; may be nil to run cacheless.
type snapshotCache interface {
	ReplaceAll(ctx context.Context, jobs []job.Job) error
	Upsert(ctx context.Context, j job.Job) error
	Jobs(ctx context.Context) ([]job.Job, error)
}

// Coordinator maps job actions and the standalone tracking toggle onto
// tracking session start/stop calls, keeping the local job set in sync with
// server responses. Local status is never advanced optimistically.
type Coordinator struct {
	techID  string
	session trackingSession
	svc     jobService
	cache   snapshotCache
	logger  *logger.Logger

	mu          sync.Mutex
	jobs        map[string]job.Job
	activeJobID string
}

// New constructs a Coordinator for one authenticated technician.
func New(techID string, session trackingSession, svc jobService, cache snapshotCache, log *logger.Logger) *Coordinator {
	return &Coordinator{
		techID:  techID,
		session: session,
		svc:     svc,
		cache:   cache,
		logger:  log,
		jobs:    make(map[string]job.Job),
	}
}

// Accept asks the service to accept the job and applies the confirmed
// record.
func (c *Coordinator) Accept(ctx context.Context, jobID string) (job.Job, error) {
	ctx = c.logger.WithRequestID(c.logger.WithJobID(ctx, jobID), uuid.NewString())

	updated, err := c.svc.AcceptJob(ctx, jobID)
	if err != nil {
		c.logger.Error(ctx, "job_accept_failed", "Dispatch rejected job accept", err, nil)
		return job.Job{}, err
	}
	c.apply(ctx, updated)

	c.logger.Info(ctx, "job_accepted", "Job accepted", map[string]any{"status": updated.Status.String()})
	return updated, nil
}

// Start begins tracking for the job, then confirms the transition with the
// dispatch service. If the service rejects the transition after tracking has
// started, tracking is rolled back so no dangling session remains, and the
// error propagates.
func (c *Coordinator) Start(ctx context.Context, jobID string, report location.ProgressFunc) (job.Job, error) {
	ctx = c.logger.WithRequestID(c.logger.WithJobID(ctx, jobID), uuid.NewString())

	if err := c.session.StartForJob(ctx, jobID, report); err != nil {
		c.logger.Error(ctx, "job_start_tracking_failed", "Could not start tracking for job", err, nil)
		return job.Job{}, err
	}

	updated, err := c.svc.StartJob(ctx, jobID, c.techID)
	if err != nil {
		// roll back: the server never confirmed, so tracking must not stay on
		if stopErr := c.session.StopForJob(ctx, jobID); stopErr != nil {
			c.logger.Error(ctx, "job_start_rollback_failed", "Tracking rollback after rejected start failed", stopErr, nil)
		}
		c.logger.Error(ctx, "job_start_rejected", "Dispatch rejected job start", err, nil)
		return job.Job{}, err
	}
	c.apply(ctx, updated)

	c.logger.Info(ctx, "job_started", "Job started and tracking active", map[string]any{"status": updated.Status.String()})
	return updated, nil
}

// Complete stops tracking for the job, then confirms completion with the
// dispatch service. Stopping is best-effort: a stuck tracking session must
// not block marking the job done, so the completion is still reported and
// the stop error is surfaced alongside the confirmed record.
func (c *Coordinator) Complete(ctx context.Context, jobID string) (job.Job, error) {
	ctx = c.logger.WithRequestID(c.logger.WithJobID(ctx, jobID), uuid.NewString())

	var stopErr error
	if err := c.session.StopForJob(ctx, jobID); err != nil {
		if errors.Is(err, track.ErrJobMismatch) {
			if bound := c.session.JobID(); bound != "" {
				// actively tracking another job; completing this one would
				// tear down the wrong route
				c.logger.Error(ctx, "job_complete_mismatch", "Session is bound to a different job", err, map[string]any{
					"bound_job_id": bound,
				})
				return job.Job{}, err
			}
			// session is idle (e.g. the job was started in a previous run);
			// nothing to stop
		} else {
			stopErr = err
			c.logger.Error(ctx, "job_complete_stop_failed", "Tracking did not stop cleanly; completing anyway", err, nil)
		}
	}

	updated, err := c.svc.CompleteJob(ctx, jobID, c.techID)
	if err != nil {
		c.logger.Error(ctx, "job_complete_rejected", "Dispatch rejected job completion", err, nil)
		return job.Job{}, err
	}
	c.apply(ctx, updated)

	c.logger.Info(ctx, "job_completed", "Job completed", map[string]any{"status": updated.Status.String()})
	return updated, stopErr
}

// ToggleStandalone flips ambient location sharing and mirrors the flag to
// the dispatch service best-effort.
func (c *Coordinator) ToggleStandalone(ctx context.Context, enabled bool, report location.ProgressFunc) error {
	if err := c.session.ToggleStandalone(ctx, enabled, report); err != nil {
		return err
	}

	if err := c.svc.ToggleTracking(ctx, c.techID, enabled); err != nil {
		// the channel event already told the server; the REST mirror is
		// advisory
		c.logger.Error(ctx, "tracking_toggle_mirror_failed", "Could not mirror tracking flag to dispatch", err, map[string]any{
			"enabled": enabled,
		})
	}
	return nil
}

// UpdateLocationNow sends a single manual location update carrying the
// current binding.
func (c *Coordinator) UpdateLocationNow(ctx context.Context, report location.ProgressFunc) (geo.Position, error) {
	return c.session.UpdateNow(ctx, report)
}

// Refresh fetches the technician's jobs, persists the snapshot, and rebinds
// the active job. When the service is unreachable the cached snapshot is
// loaded instead and the fetch error is returned so callers know the data
// may be stale.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ctx = c.logger.WithRequestID(ctx, uuid.NewString())

	fetched, err := c.svc.MyJobs(ctx, c.techID)
	if err != nil {
		if c.cache != nil {
			if cached, cacheErr := c.cache.Jobs(ctx); cacheErr == nil && len(cached) > 0 {
				c.install(cached)
				c.logger.Info(ctx, "jobs_served_from_cache", "Dispatch unreachable; serving cached job snapshot", map[string]any{
					"jobs": len(cached),
				})
			}
		}
		return fmt.Errorf("job refresh failed: %w", err)
	}

	c.install(fetched)
	if c.cache != nil {
		if err := c.cache.ReplaceAll(ctx, fetched); err != nil {
			c.logger.Error(ctx, "jobs_cache_write_failed", "Could not persist job snapshot", err, nil)
		}
	}

	c.logger.Info(ctx, "jobs_refreshed", "Job snapshot refreshed", map[string]any{
		"jobs":          len(fetched),
		"active_job_id": c.ActiveJobID(),
	})
	return nil
}

// Jobs returns the current job set ordered by id.
func (c *Coordinator) Jobs() []job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]job.Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// Stats aggregates the current job set.
func (c *Coordinator) Stats() job.Stats {
	return job.Tally(c.Jobs())
}

// ActiveJobID returns the id of the job currently in progress, or "".
func (c *Coordinator) ActiveJobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeJobID
}

// --- internals ---

// apply folds one server-confirmed record into the job set and the cache.
func (c *Coordinator) apply(ctx context.Context, j job.Job) {
	c.mu.Lock()
	c.jobs[j.ID] = j
	switch {
	case j.Status == job.StatusInProgress:
		c.activeJobID = j.ID
	case c.activeJobID == j.ID:
		c.activeJobID = ""
	}
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Upsert(ctx, j); err != nil {
			c.logger.Error(ctx, "jobs_cache_write_failed", "Could not persist job record", err, nil)
		}
	}
}

// install replaces the in-memory job set and rebinds the active job.
func (c *Coordinator) install(jobs []job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.jobs = make(map[string]job.Job, len(jobs))
	c.activeJobID = ""
	for _, j := range jobs {
		c.jobs[j.ID] = j
		if j.Status == job.StatusInProgress {
			c.activeJobID = j.ID
		}
	}
}
