// Package imagery defines the query interface to the imagery repository
// and a GeoTIFF-backed implementation of it.
package imagery

import (
	"context"
	"fmt"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/paulmach/orb"
)

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (d DateRange) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

func (d DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("date range needs both a start and an end")
	}
	if !d.Start.Before(d.End) {
		return fmt.Errorf("date range start %s is not before end %s", d.Start.Format(time.DateOnly), d.End.Format(time.DateOnly))
	}
	return nil
}

func (d DateRange) String() string {
	return d.Start.Format(time.DateOnly) + " to " + d.End.Format(time.DateOnly)
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	d := DateRange{Start: s, End: e}
	return d, d.Validate()
}

type Query struct {
	Satellite catalog.Satellite
	Range     DateRange
	Region    orb.Bound
	// MaxCloudCover keeps scenes whose cloud percentage is strictly lower.
	MaxCloudCover float64
}

// Repository serves raw scenes (reflectance bands then quality band) for a query.
type Repository interface {
	Query(ctx context.Context, q Query) (*raster.Collection, error)
}
