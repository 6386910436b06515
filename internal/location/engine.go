package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldtrack/internal/domain/geo"
	"fieldtrack/internal/logger"
)

// Tier is one accuracy/timeout rung of the acquisition ladder. Each tier's
// timeout is independent; the ladder never aggregates them into a single
// deadline.
type Tier struct {
	Accuracy Accuracy
	Timeout  time.Duration
}

// Config tunes the acquisition ladder.
type Config struct {
	// StalenessWindow bounds how old a cached fix may be to short-circuit
	// acquisition.
	StalenessWindow time.Duration

	// Tiers are tried in order, stopping at the first fix.
	Tiers []Tier
}

// DefaultConfig returns the ladder shipped with the agent: cached fixes up to
// ten minutes old, then high through lowest accuracy.
func DefaultConfig() Config {
	return Config{
		StalenessWindow: 10 * time.Minute,
		Tiers: []Tier{
			{Accuracy: AccuracyHigh, Timeout: 15 * time.Second},
			{Accuracy: AccuracyBalanced, Timeout: 12 * time.Second},
			{Accuracy: AccuracyLow, Timeout: 10 * time.Second},
			{Accuracy: AccuracyLowest, Timeout: 8 * time.Second},
		},
	}
}

// Engine acquires a best-effort position from the device. It knows nothing
// about jobs or networking.
type Engine struct {
	device DeviceAPI
	cfg    Config
	logger *logger.Logger

	now func() time.Time // test hook
}

// NewEngine constructs an Engine over the given device boundary.
func NewEngine(device DeviceAPI, cfg Config, log *logger.Logger) *Engine {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultConfig().Tiers
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultConfig().StalenessWindow
	}
	return &Engine{device: device, cfg: cfg, logger: log, now: time.Now}
}

// Acquire resolves one position: capability preflight, then the cached
// last-known fix if fresh enough, then the tier ladder. report may be nil.
//
// Preflight failures (ErrServicesDisabled, ErrPermissionDenied) are not
// retried here; exhausted tiers fail with ErrUnavailable.
func (e *Engine) Acquire(ctx context.Context, report ProgressFunc) (geo.Position, error) {
	progress := func(msg string) {
		if report != nil {
			report(msg)
		}
	}

	// 1) capability preflight, fail fast with distinct error kinds
	enabled, err := e.device.ServicesEnabled(ctx)
	if err != nil {
		return geo.Position{}, fmt.Errorf("location services check failed: %w", err)
	}
	if !enabled {
		return geo.Position{}, ErrServicesDisabled
	}

	granted, err := e.device.PermissionGranted(ctx)
	if err != nil {
		return geo.Position{}, fmt.Errorf("location permission check failed: %w", err)
	}
	if !granted {
		return geo.Position{}, ErrPermissionDenied
	}

	// 2) cached last-known fix, the fast path
	progress("Checking last known location...")
	if cached, err := e.device.LastKnown(ctx); err == nil && cached != nil {
		if age := cached.Age(e.now()); age <= e.cfg.StalenessWindow {
			progress("Using recent location")
			e.logger.Debug(ctx, "location_cached_fix", "Served cached fix", map[string]any{
				"age": age.String(),
			})
			return *cached, nil
		}
	}

	// 3) fresh fix, cheapening the accuracy until one tier resolves
	for _, tier := range e.cfg.Tiers {
		progress(tierMessage(tier.Accuracy))

		tierCtx, cancel := context.WithTimeout(ctx, tier.Timeout)
		pos, err := e.device.CurrentPosition(tierCtx, tier.Accuracy)
		cancel()
		if err == nil {
			progress("Location found")
			e.logger.Info(ctx, "location_fix_acquired", "Acquired fresh fix", map[string]any{
				"accuracy":        string(tier.Accuracy),
				"accuracy_meters": pos.AccuracyMeters,
			})
			return pos, nil
		}

		// the parent being cancelled is terminal; a tier timing out is not
		if ctx.Err() != nil {
			return geo.Position{}, ctx.Err()
		}

		e.logger.Debug(ctx, "location_tier_failed", "Accuracy tier did not resolve", map[string]any{
			"accuracy": string(tier.Accuracy),
			"timeout":  tier.Timeout.String(),
			"reason":   err.Error(),
		})
	}

	// 4) all tiers exhausted
	progress("Could not determine location")
	e.logger.Error(ctx, "location_unavailable", "All accuracy tiers timed out", ErrUnavailable, map[string]any{
		"tiers": len(e.cfg.Tiers),
	})
	return geo.Position{}, ErrUnavailable
}

// Watch arms a continuous-fix subscription on the device.
func (e *Engine) Watch(ctx context.Context, opts WatchOptions, fn func(geo.Position)) (Watcher, error) {
	return e.device.Watch(ctx, opts, fn)
}

// IsTerminal reports whether err is one of the non-retryable preflight kinds.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrServicesDisabled)
}

func tierMessage(a Accuracy) string {
	switch a {
	case AccuracyHigh:
		return "Getting precise location..."
	case AccuracyBalanced:
		return "Getting approximate location..."
	case AccuracyLow:
		return "Getting coarse location..."
	default:
		return "Getting any available location..."
	}
}
