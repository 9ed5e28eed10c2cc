// Package pipeline chains compositing, index derivation, change detection
// and classification into the two products of a run: a change map and a
// land-cover classification map.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/composite"
	"github.com/forest-guardian/slidescan/internal/forest"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/index"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/forest-guardian/slidescan/internal/samples"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// ModelCache stores trained forests between runs. cache.FileCache satisfies it.
type ModelCache interface {
	Get(key string) (*forest.Model, bool)
	Set(key string, data *forest.Model) error
	GenerateKey(params ...interface{}) string
}

type Runner struct {
	repo     imagery.Repository
	logger   *slog.Logger
	timeout  time.Duration
	cache    ModelCache
	workers  int
	progress bool
}

type Option func(*Runner)

// WithTimeout bounds every repository query.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithModelCache(c ModelCache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithWorkers sets the tree-fitting worker count.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

func WithProgress(show bool) Option {
	return func(r *Runner) { r.progress = show }
}

func New(repo imagery.Repository, opts ...Option) *Runner {
	r := &Runner{repo: repo, logger: slog.Default(), workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) compositor() *composite.Compositor {
	return composite.New(r.repo, composite.WithTimeout(r.timeout), composite.WithLogger(r.logger))
}

type ChangeRequest struct {
	Region orb.Bound
	Before imagery.DateRange
	After  imagery.DateRange
	// Satellite supplies the after composite, and the before composite
	// too unless BeforeSatellite is set.
	Satellite       catalog.Satellite
	BeforeSatellite catalog.Satellite
	CloudThreshold  float64
	Index           catalog.IndexName
	ChangeThreshold float64
}

func (req ChangeRequest) beforeSatellite() catalog.Satellite {
	if req.BeforeSatellite != "" {
		return req.BeforeSatellite
	}
	return req.Satellite
}

// ComputeChangeMap composites both periods concurrently, derives the index
// on each with its own sensor's bands and flags pixels whose change falls
// below the threshold.
func (r *Runner) ComputeChangeMap(ctx context.Context, req ChangeRequest) (*raster.Raster, error) {
	c := r.compositor()

	var before, after *raster.Raster
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = r.indexed(gctx, c, req.beforeSatellite(), req.Before, req.Region, req.CloudThreshold, req.Index)
		if err != nil {
			return fmt.Errorf("before composite: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		after, err = r.indexed(gctx, c, req.Satellite, req.After, req.Region, req.CloudThreshold, req.Index)
		if err != nil {
			return fmt.Errorf("after composite: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m, err := change.Detect(before, after, string(req.Index), req.ChangeThreshold)
	if err != nil {
		return nil, err
	}
	if s, err := change.Summarize(m); err == nil {
		r.logger.Info("change map computed",
			"index", req.Index, "threshold", req.ChangeThreshold,
			"pixels", s.Pixels, "valid", s.Valid, "flagged", s.Flagged)
	}
	return m, nil
}

func (r *Runner) indexed(ctx context.Context, c *composite.Compositor, sat catalog.Satellite, dates imagery.DateRange, region orb.Bound, cloud float64, indices ...catalog.IndexName) (*raster.Raster, error) {
	schema, err := catalog.Lookup(sat)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if _, err := schema.IndexPair(idx); err != nil {
			return nil, err
		}
	}
	img, err := c.Composite(ctx, imagery.Query{
		Satellite:     sat,
		Range:         dates,
		Region:        region,
		MaxCloudCover: cloud,
	})
	if err != nil {
		return nil, err
	}
	return index.AddIndices(img, schema, indices...)
}

type ClassificationRequest struct {
	Region         orb.Bound
	Range          imagery.DateRange
	Satellite      catalog.Satellite
	CloudThreshold float64
	Polygons       []samples.Polygon
	// ClassProperty defaults to "class".
	ClassProperty string
	// FeatureBands defaults to every band of the stack.
	FeatureBands []string
	TreeCount    int
	Seed         uint64
	// Scale is the sampling grid spacing in metres.
	Scale float64
	// Before, when set, adds ndvi_change and ndwi_change features computed
	// against a composite of that period.
	Before *imagery.DateRange
}

// DefaultClassProperty is the polygon property read when none is given.
const DefaultClassProperty = "class"

// ChangeFeature names the change band derived for idx.
func ChangeFeature(idx catalog.IndexName) string { return string(idx) + "_change" }

// ComputeClassification builds the feature stack for the period, trains a
// forest on the polygon samples and labels every pixel of the stack.
func (r *Runner) ComputeClassification(ctx context.Context, req ClassificationRequest) (*raster.Raster, error) {
	if req.ClassProperty == "" {
		req.ClassProperty = DefaultClassProperty
	}
	stack, err := r.featureStack(ctx, req)
	if err != nil {
		return nil, err
	}
	features := req.FeatureBands
	if len(features) == 0 {
		features = stack.BandNames()
	}

	model, err := r.model(req, stack, features)
	if err != nil {
		return nil, err
	}

	out, err := forest.Predict(model, stack, features)
	if err != nil {
		return nil, err
	}
	r.logger.Info("classification computed", "satellite", req.Satellite, "features", len(features), "trees", model.TreeCount(), "classes", model.Classes())
	return out, nil
}

func (r *Runner) featureStack(ctx context.Context, req ClassificationRequest) (*raster.Raster, error) {
	c := r.compositor()
	indices := catalog.Indices()
	if req.Before == nil {
		return r.indexed(ctx, c, req.Satellite, req.Range, req.Region, req.CloudThreshold, indices...)
	}

	var before, after *raster.Raster
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = r.indexed(gctx, c, req.Satellite, *req.Before, req.Region, req.CloudThreshold, indices...)
		return err
	})
	g.Go(func() error {
		var err error
		after, err = r.indexed(gctx, c, req.Satellite, req.Range, req.Region, req.CloudThreshold, indices...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bands := make([]raster.Band, 0, len(indices))
	for _, idx := range indices {
		d, err := change.Delta(before, after, string(idx), ChangeFeature(idx))
		if err != nil {
			return nil, err
		}
		bands = append(bands, d)
	}
	return after.AddBands(bands...)
}

func (r *Runner) model(req ClassificationRequest, stack *raster.Raster, features []string) (*forest.Model, error) {
	var key string
	if r.cache != nil {
		before := ""
		if req.Before != nil {
			before = req.Before.String()
		}
		key = r.cache.GenerateKey(req.Satellite, req.Range, before, req.Region, req.CloudThreshold,
			req.Polygons, req.ClassProperty, features, req.TreeCount, req.Seed, req.Scale)
		if m, ok := r.cache.Get(key); ok {
			r.logger.Debug("using cached model", "key", key)
			return m, nil
		}
	}

	data, err := samples.Extract(req.Polygons, stack, req.ClassProperty, req.Scale)
	if err != nil {
		return nil, err
	}
	r.logger.Info("training samples extracted", "polygons", len(req.Polygons), "samples", len(data))

	m, err := forest.Train(data, req.ClassProperty, features, req.TreeCount, req.Seed,
		forest.WithWorkers(r.workers), forest.WithProgress(r.progress))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(key, m); err != nil {
			r.logger.Warn("failed to cache model", "error", err)
		}
	}
	return m, nil
}
