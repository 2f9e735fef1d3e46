// Package providers holds the device collaborators the tracking service
// consumes: location fixes and photo capture.
package providers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// LocationProvider returns the current position. A nil fix with a nil error
// means no position is available.
type LocationProvider interface {
	CurrentFix(ctx context.Context, highAccuracy bool) (*syncapi.GeoPoint, error)
}

// NoLocation never has a fix. Used where the device has no positioning.
type NoLocation struct{}

func (NoLocation) CurrentFix(context.Context, bool) (*syncapi.GeoPoint, error) { return nil, nil }

// StaticLocation reports a fixed position, stamped with the current time.
type StaticLocation struct {
	Lat, Lon, Accuracy float64
	Now                func() time.Time
}

func (s StaticLocation) CurrentFix(_ context.Context, _ bool) (*syncapi.GeoPoint, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &syncapi.GeoPoint{Lat: s.Lat, Lon: s.Lon, Accuracy: s.Accuracy, Timestamp: now().UTC()}, nil
}
