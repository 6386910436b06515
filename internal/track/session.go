package track

import (
	"context"
	"sync"
	"time"

	"fieldtrack/internal/contracts"
	"fieldtrack/internal/domain/geo"
	"fieldtrack/internal/location"
	"fieldtrack/internal/logger"
)

// Emitter is the slice of the connection manager the session needs.
// *channel.Manager satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Acquirer is the slice of the acquisition engine the session needs.
// *location.Engine satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, report location.ProgressFunc) (geo.Position, error)
	Watch(ctx context.Context, opts location.WatchOptions, fn func(geo.Position)) (location.Watcher, error)
}

// Config tunes the periodic sampler. Job-bound and standalone tracking run
// on separate cadences.
type Config struct {
	JobInterval           time.Duration
	JobMinDistanceM       float64
	StandaloneInterval    time.Duration
	StandaloneMinDistance float64
}

// DefaultConfig matches the dispatcher's expectations: 5s/10m on a job,
// 10s/20m standalone.
func DefaultConfig() Config {
	return Config{
		JobInterval:           5 * time.Second,
		JobMinDistanceM:       10,
		StandaloneInterval:    10 * time.Second,
		StandaloneMinDistance: 20,
	}
}

// Session is the one tracking state machine per device. Once started it
// invokes the acquisition engine and forwards samples through the dispatch
// channel until stopped.
//
// Samples are forwarded only when the cadence interval has elapsed AND the
// device has moved at least the distance threshold since the last forwarded
// sample. Delivery is fire and forget: a failed emission is dropped, never
// queued.
type Session struct {
	engine  Acquirer
	emitter Emitter
	logger  *logger.Logger
	techID  string
	cfg     Config
	now     func() time.Time // test hook

	mu          sync.Mutex
	mode        Mode
	jobID       string
	gen         int // bumped on every teardown; in-flight acquisitions check it
	watcher     location.Watcher
	watchCancel context.CancelFunc
	lastSent    geo.Position
	lastSentAt  time.Time
	haveSent    bool
	toggleBusy  bool
}

// NewSession constructs the session for one authenticated technician.
func NewSession(engine Acquirer, emitter Emitter, techID string, cfg Config, log *logger.Logger) *Session {
	if cfg.JobInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Session{
		engine:  engine,
		emitter: emitter,
		logger:  log,
		techID:  techID,
		cfg:     cfg,
		mode:    ModeOff,
		now:     time.Now,
	}
}

// Mode returns the current session mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// JobID returns the bound job id, or "" when unbound.
func (s *Session) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// StartForJob acquires a fix, emits the startRoute event, binds jobID, and
// arms the periodic sampler. The session returns to Off on any failure.
func (s *Session) StartForJob(ctx context.Context, jobID string, report location.ProgressFunc) error {
	s.mu.Lock()
	if s.mode != ModeOff {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.mode = ModeAcquiringFix
	s.jobID = jobID
	gen := s.gen
	s.mu.Unlock()

	pos, err := s.engine.Acquire(ctx, report)
	if err != nil {
		s.resetIfCurrent(gen)
		return err
	}

	if !s.stillAcquiring(gen) {
		// torn down mid-acquisition; the fix is discarded
		return ErrStopped
	}

	err = s.emitter.Emit(ctx, contracts.EventStartRoute, contracts.RoutePoint{
		TechID: s.techID,
		JobID:  jobID,
		Lat:    pos.Lat,
		Lng:    pos.Lng,
	})
	if err != nil {
		s.resetIfCurrent(gen)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.mode != ModeAcquiringFix {
		return ErrStopped
	}
	if err := s.armSamplerLocked(false, pos); err != nil {
		s.resetLocked()
		return err
	}
	s.mode = ModeTracking

	s.logger.Info(s.logger.WithJobID(ctx, jobID), "route_started", "Route tracking started", map[string]any{
		"lat": pos.Lat,
		"lng": pos.Lng,
	})
	return nil
}

// StopForJob disarms the sampler, acquires one final fix, emits the endRoute
// event, and returns the session to Off. The session transitions to Off even
// when the final fix fails; tracking is never left running after a
// completion attempt. Fails with ErrJobMismatch when bound to a different
// job.
func (s *Session) StopForJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if !s.mode.Engaged() || s.jobID == "" || s.jobID != jobID {
		s.mu.Unlock()
		return ErrJobMismatch
	}
	s.mode = ModeStoppingRequested
	// disarm before the completion event so no sample can trail it
	s.disarmSamplerLocked()
	gen := s.gen
	s.mu.Unlock()

	pos, acqErr := s.engine.Acquire(ctx, nil)
	var emitErr error
	if acqErr == nil {
		emitErr = s.emitter.Emit(ctx, contracts.EventEndRoute, contracts.RoutePoint{
			TechID: s.techID,
			JobID:  jobID,
			Lat:    pos.Lat,
			Lng:    pos.Lng,
		})
	}

	s.mu.Lock()
	if s.gen == gen {
		s.resetLocked()
	}
	s.mu.Unlock()

	if acqErr != nil {
		s.logger.Error(s.logger.WithJobID(ctx, jobID), "route_end_fix_failed", "Could not acquire final fix; route closed without it", acqErr, nil)
		return acqErr
	}
	if emitErr != nil {
		return emitErr
	}

	s.logger.Info(s.logger.WithJobID(ctx, jobID), "route_completed", "Route tracking completed", map[string]any{
		"lat": pos.Lat,
		"lng": pos.Lng,
	})
	return nil
}

// ToggleStandalone starts or stops ambient location sharing with no job
// bound. Concurrent toggles are serialized: a second call while one is in
// flight fails with ErrOperationInProgress.
func (s *Session) ToggleStandalone(ctx context.Context, enabled bool, report location.ProgressFunc) error {
	s.mu.Lock()
	if s.toggleBusy {
		s.mu.Unlock()
		return ErrOperationInProgress
	}
	s.toggleBusy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.toggleBusy = false
		s.mu.Unlock()
	}()

	if enabled {
		return s.enableStandalone(ctx, report)
	}
	return s.disableStandalone(ctx)
}

func (s *Session) enableStandalone(ctx context.Context, report location.ProgressFunc) error {
	s.mu.Lock()
	if s.mode != ModeOff {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.mode = ModeAcquiringFix
	gen := s.gen
	s.mu.Unlock()

	pos, err := s.engine.Acquire(ctx, report)
	if err != nil {
		s.resetIfCurrent(gen)
		return err
	}

	if !s.stillAcquiring(gen) {
		return ErrStopped
	}

	err = s.emitter.Emit(ctx, contracts.EventToggleTracking, contracts.ToggleTracking{
		TechID:  s.techID,
		Enabled: true,
		Lat:     &pos.Lat,
		Lng:     &pos.Lng,
	})
	if err != nil {
		s.resetIfCurrent(gen)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.mode != ModeAcquiringFix {
		return ErrStopped
	}
	if err := s.armSamplerLocked(true, pos); err != nil {
		s.resetLocked()
		return err
	}
	s.mode = ModeTracking

	s.logger.Info(ctx, "standalone_tracking_enabled", "Ambient location sharing enabled", map[string]any{
		"lat": pos.Lat,
		"lng": pos.Lng,
	})
	return nil
}

func (s *Session) disableStandalone(ctx context.Context) error {
	s.mu.Lock()
	if s.mode == ModeOff {
		s.mu.Unlock()
		return nil
	}
	if s.jobID != "" {
		// a standalone toggle must not silently kill a job-bound session
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.resetLocked()
	s.mu.Unlock()

	// disabling needs no final fix
	err := s.emitter.Emit(ctx, contracts.EventToggleTracking, contracts.ToggleTracking{
		TechID:  s.techID,
		Enabled: false,
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "standalone_tracking_disabled", "Ambient location sharing disabled", nil)
	return nil
}

// UpdateNow acquires one fix and emits a single location update carrying the
// current binding, without touching the session mode.
func (s *Session) UpdateNow(ctx context.Context, report location.ProgressFunc) (geo.Position, error) {
	pos, err := s.engine.Acquire(ctx, report)
	if err != nil {
		return geo.Position{}, err
	}

	s.mu.Lock()
	jobID := s.jobID
	s.mu.Unlock()

	var jobPtr *string
	if jobID != "" {
		jobPtr = &jobID
	}
	err = s.emitter.Emit(ctx, contracts.EventUpdateLocation, contracts.LocationUpdate{
		TechID: s.techID,
		JobID:  jobPtr,
		Lat:    pos.Lat,
		Lng:    pos.Lng,
	})
	if err != nil {
		return geo.Position{}, err
	}
	return pos, nil
}

// StopAll synchronously disarms any sampler and forces the session to Off.
// An in-flight acquisition has its result discarded when it resolves. Wired
// to the connection manager's disconnect hook; idempotent.
func (s *Session) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.resetLocked()
}

// --- internals ---

// armSamplerLocked subscribes to continuous fixes. Caller holds s.mu.
func (s *Session) armSamplerLocked(standalone bool, seed geo.Position) error {
	interval, minDist := s.cadence(standalone)

	ctx, cancel := context.WithCancel(context.Background())
	watcher, err := s.engine.Watch(ctx, location.WatchOptions{
		Accuracy:    location.AccuracyHigh,
		Interval:    interval,
		MinDistance: minDist,
	}, s.onSample)
	if err != nil {
		cancel()
		return err
	}

	s.watcher = watcher
	s.watchCancel = cancel
	s.lastSent = seed
	s.lastSentAt = s.now()
	s.haveSent = true
	return nil
}

// disarmSamplerLocked revokes the subscription. Caller holds s.mu.
func (s *Session) disarmSamplerLocked() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

// resetLocked returns the session to Off. Caller holds s.mu.
func (s *Session) resetLocked() {
	s.disarmSamplerLocked()
	s.mode = ModeOff
	s.jobID = ""
	s.haveSent = false
}

// resetIfCurrent resets the session unless a teardown already superseded the
// generation observed by the caller.
func (s *Session) resetIfCurrent(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.resetLocked()
	}
}

// stillAcquiring reports whether the start that observed gen is still the
// live one.
func (s *Session) stillAcquiring(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.mode == ModeAcquiringFix
}

func (s *Session) cadence(standalone bool) (time.Duration, float64) {
	if standalone {
		return s.cfg.StandaloneInterval, s.cfg.StandaloneMinDistance
	}
	return s.cfg.JobInterval, s.cfg.JobMinDistanceM
}

// onSample gates one continuous fix through the time-and-distance policy and
// forwards it fire-and-forget.
func (s *Session) onSample(pos geo.Position) {
	s.mu.Lock()
	if s.mode != ModeTracking {
		s.mu.Unlock()
		return
	}

	interval, minDist := s.cadence(s.jobID == "")
	now := s.now()
	if s.haveSent {
		if now.Sub(s.lastSentAt) < interval || geo.DistanceMeters(s.lastSent, pos) < minDist {
			s.mu.Unlock()
			return
		}
	}

	var jobPtr *string
	if s.jobID != "" {
		v := s.jobID
		jobPtr = &v
	}
	s.lastSent = pos
	s.lastSentAt = now
	s.haveSent = true
	s.mu.Unlock()

	// at-most-once: a failed emission is logged and dropped, never queued
	err := s.emitter.Emit(context.Background(), contracts.EventUpdateLocation, contracts.LocationUpdate{
		TechID: s.techID,
		JobID:  jobPtr,
		Lat:    pos.Lat,
		Lng:    pos.Lng,
	})
	if err != nil {
		s.logger.Debug(context.Background(), "location_sample_dropped", "Sample emission failed; dropped", map[string]any{
			"reason": err.Error(),
		})
	}
}
