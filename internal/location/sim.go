package location

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fieldtrack/internal/domain/geo"
)

// SimDevice is a DeviceAPI backed by a random walk instead of real
// positioning hardware. The agent binary uses it where no platform location
// SDK is wired in; tests and development runs against a live dispatch server
// get plausible movement out of it.
type SimDevice struct {
	mu      sync.Mutex
	pos     geo.Position
	stepM   float64
	enabled bool
	granted bool
}

// NewSimDevice starts the walk at the given coordinates.
func NewSimDevice(lat, lng float64) *SimDevice {
	return &SimDevice{
		pos: geo.Position{
			Lat:            lat,
			Lng:            lng,
			AccuracyMeters: 8,
			CapturedAt:     time.Now().UTC(),
		},
		stepM:   15,
		enabled: true,
		granted: true,
	}
}

// SetServicesEnabled flips the simulated services switch.
func (d *SimDevice) SetServicesEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

// SetPermissionGranted flips the simulated permission grant.
func (d *SimDevice) SetPermissionGranted(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.granted = on
}

func (d *SimDevice) ServicesEnabled(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled, nil
}

func (d *SimDevice) PermissionGranted(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.granted, nil
}

func (d *SimDevice) LastKnown(ctx context.Context) (*geo.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.pos
	return &p, nil
}

func (d *SimDevice) CurrentPosition(ctx context.Context, accuracy Accuracy) (geo.Position, error) {
	if err := ctx.Err(); err != nil {
		return geo.Position{}, err
	}
	return d.walk(), nil
}

func (d *SimDevice) Watch(ctx context.Context, opts WatchOptions, fn func(geo.Position)) (Watcher, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(d.walk())
			}
		}
	}()
	return watcherFunc(cancel), nil
}

// walk moves the position one step in a random direction.
func (d *SimDevice) walk() geo.Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	// ~1e-5 degrees of latitude per meter; close enough for a simulator
	const degPerMeter = 1.0 / 111320.0
	d.pos = geo.Position{
		Lat:            d.pos.Lat + (rand.Float64()*2-1)*d.stepM*degPerMeter,
		Lng:            d.pos.Lng + (rand.Float64()*2-1)*d.stepM*degPerMeter,
		AccuracyMeters: 5 + rand.Float64()*10,
		CapturedAt:     time.Now().UTC(),
	}
	return d.pos
}

// watcherFunc adapts a cancel func to the Watcher interface.
type watcherFunc context.CancelFunc

func (w watcherFunc) Stop() { w() }
