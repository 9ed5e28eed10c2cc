// Package composite reduces an image collection to one per-pixel median raster.
package composite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/cloudmask"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/raster"
)

// Median computes, for every band and pixel, the median of the members
// that are valid there. A pixel with no valid member stays masked.
func Median(c *raster.Collection) (*raster.Raster, error) {
	if c.Len() == 0 {
		return nil, raster.ErrEmptyCollection
	}
	first := c.At(0)
	size := first.Len()

	bands := make([]raster.Band, 0, len(first.BandNames()))
	samples := make([]float64, 0, c.Len())
	for _, name := range first.BandNames() {
		members := make([]raster.Band, c.Len())
		for m := range members {
			b, err := c.At(m).Band(name)
			if err != nil {
				return nil, err
			}
			members[m] = b
		}

		values := make([]float64, size)
		valid := make([]bool, size)
		for i := range size {
			samples = samples[:0]
			for _, b := range members {
				if v, ok := b.At(i); ok {
					samples = append(samples, v)
				}
			}
			if len(samples) == 0 {
				continue
			}
			values[i] = median(samples)
			valid[i] = true
		}
		bands = append(bands, raster.NewBand(name, values, valid))
	}

	return raster.New(first.Width(), first.Height(), bands, raster.WithGeoTransform(first.GeoTransform()))
}

// median sorts values in place.
func median(values []float64) float64 {
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// Compositor builds cloud-masked median composites from an imagery repository.
type Compositor struct {
	repo    imagery.Repository
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Compositor)

// WithTimeout bounds each repository query. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(c *Compositor) { c.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) { c.logger = logger }
}

func New(repo imagery.Repository, opts ...Option) *Compositor {
	c := &Compositor{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Composite queries q, masks every scene with its sensor rules and returns
// the median clipped to the query region.
func (c *Compositor) Composite(ctx context.Context, q imagery.Query) (*raster.Raster, error) {
	schema, err := catalog.Lookup(q.Satellite)
	if err != nil {
		return nil, err
	}
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	collection, err := c.repo.Query(ctx, q)
	if err != nil {
		return nil, &raster.RepositoryError{Satellite: string(q.Satellite), Err: err}
	}
	if collection.Len() == 0 {
		return nil, fmt.Errorf("%w: no %s scenes for %s below %.0f%% cloud cover",
			raster.ErrEmptyCollection, q.Satellite, q.Range, q.MaxCloudCover)
	}
	c.logger.Info("compositing scenes", "satellite", q.Satellite, "range", q.Range.String(), "scenes", collection.Len())

	masked, err := collection.Map(func(r *raster.Raster) (*raster.Raster, error) {
		return cloudmask.Apply(r, schema)
	})
	if err != nil {
		return nil, err
	}

	composite, err := Median(masked)
	if err != nil {
		return nil, err
	}
	return composite.Clip(q.Region)
}
