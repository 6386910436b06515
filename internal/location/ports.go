package location

import (
	"context"
	"time"

	"fieldtrack/internal/domain/geo"
)

// Accuracy is one tier of the device positioning hardware.
type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyLow      Accuracy = "low"
	AccuracyLowest   Accuracy = "lowest"
)

// WatchOptions configure a continuous-fix subscription.
type WatchOptions struct {
	Accuracy    Accuracy
	Interval    time.Duration
	MinDistance float64 // meters
}

// Watcher is a cancellable continuous-fix subscription.
type Watcher interface {
	// Stop revokes the subscription. Safe to call more than once.
	Stop()
}

// DeviceAPI is the boundary to the platform location services. Implementations
// wrap the actual device SDK; tests substitute a fake.
type DeviceAPI interface {
	// ServicesEnabled reports whether device location services are on.
	ServicesEnabled(ctx context.Context) (bool, error)

	// PermissionGranted reports whether the app may read location.
	PermissionGranted(ctx context.Context) (bool, error)

	// LastKnown returns the most recent cached fix, or nil if none exists.
	LastKnown(ctx context.Context) (*geo.Position, error)

	// CurrentPosition resolves one fresh fix at the given accuracy. It must
	// return within the deadline carried by ctx.
	CurrentPosition(ctx context.Context, accuracy Accuracy) (geo.Position, error)

	// Watch subscribes to continuous fixes filtered by the device to the
	// given time/distance thresholds.
	Watch(ctx context.Context, opts WatchOptions, fn func(geo.Position)) (Watcher, error)
}

// ProgressFunc receives advisory human-readable status updates during an
// acquisition. It must never affect control flow.
type ProgressFunc func(message string)
