package geo

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// Position is a single resolved geographic fix with accuracy metadata.
// Positions are immutable after creation.
type Position struct {
	Lat            float64
	Lng            float64
	AccuracyMeters float64
	CapturedAt     time.Time
}

// NewPosition constructs a Position captured now (UTC) with range checks.
func NewPosition(lat, lng, accuracyMeters float64) (Position, error) {
	p := Position{
		Lat:            lat,
		Lng:            lng,
		AccuracyMeters: accuracyMeters,
		CapturedAt:     time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Validate checks coordinate ranges.
func (p Position) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidLatitude
	}
	if p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Age reports how old the fix is relative to now.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.CapturedAt)
}

// DistanceMeters returns the haversine distance between two positions.
func DistanceMeters(a, b Position) float64 {
	const earthRadiusM = 6371000.0
	a1 := a.Lat * math.Pi / 180
	a2 := b.Lat * math.Pi / 180
	da := (b.Lat - a.Lat) * math.Pi / 180
	db := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}
