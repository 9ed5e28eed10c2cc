package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/forest"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/forest-guardian/slidescan/internal/samples"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	geo    = raster.GeoTransform{132.0, 0.001, 0, 34.001, 0, -0.001}
	region = orb.Bound{Min: orb.Point{131.9, 33.9}, Max: orb.Point{132.1, 34.1}}

	before = imagery.DateRange{Start: day(2017, 7, 1), End: day(2017, 8, 1)}
	after  = imagery.DateRange{Start: day(2018, 7, 20), End: day(2018, 8, 30)}
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

type fakeRepository struct {
	mu      sync.Mutex
	scenes  map[string]*raster.Collection
	queried []catalog.Satellite
	err     error
}

func key(sat catalog.Satellite, dates imagery.DateRange) string {
	return fmt.Sprintf("%s@%s", sat, dates.Start.Format(time.DateOnly))
}

func (f *fakeRepository) add(t *testing.T, sat catalog.Satellite, dates imagery.DateRange, scenes ...*raster.Raster) {
	t.Helper()
	c, err := raster.NewCollection(scenes...)
	require.NoError(t, err)
	if f.scenes == nil {
		f.scenes = map[string]*raster.Collection{}
	}
	f.scenes[key(sat, dates)] = c
}

func (f *fakeRepository) Query(ctx context.Context, q imagery.Query) (*raster.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, q.Satellite)
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.scenes[key(q.Satellite, q.Range)]; ok {
		return c, nil
	}
	return raster.NewCollection()
}

// scene builds a raw scene of sat with every band at fill except the
// overrides, on a len(qa) x 1 grid.
func scene(t *testing.T, sat catalog.Satellite, at time.Time, fill float64, overrides map[string][]float64, qa []float64) *raster.Raster {
	t.Helper()
	s, err := catalog.Lookup(sat)
	require.NoError(t, err)

	bands := make([]raster.Band, 0, len(s.Bands)+1)
	for _, name := range s.Bands {
		values, ok := overrides[name]
		if !ok {
			values = make([]float64, len(qa))
			for i := range values {
				values[i] = fill
			}
		}
		bands = append(bands, raster.NewBand(name, values, nil))
	}
	bands = append(bands, raster.NewBand(s.QualityBand, qa, nil))

	r, err := raster.New(len(qa), 1, bands, raster.WithTime(at), raster.WithGeoTransform(geo))
	require.NoError(t, err)
	return r
}

const cloud = 1 << 10

func TestChangeMapFlagsOnlyTheOverlappingDrop(t *testing.T) {
	repo := &fakeRepository{}
	// before is clear on pixels 0 and 1, after on pixels 1 and 2.
	repo.add(t, catalog.Sentinel2, before, scene(t, catalog.Sentinel2, day(2017, 7, 10), 1000,
		map[string][]float64{"B8": {9000, 9000, 9000}, "B4": {1000, 1000, 1000}},
		[]float64{0, 0, cloud}))
	repo.add(t, catalog.Sentinel2, after, scene(t, catalog.Sentinel2, day(2018, 7, 25), 1000,
		map[string][]float64{"B8": {1000, 7000, 1000}, "B4": {9000, 3000, 9000}},
		[]float64{cloud, 0, 0}))

	m, err := New(repo).ComputeChangeMap(context.Background(), ChangeRequest{
		Region:          region,
		Before:          before,
		After:           after,
		Satellite:       catalog.Sentinel2,
		CloudThreshold:  50,
		Index:           catalog.NDVI,
		ChangeThreshold: -0.3,
	})
	require.NoError(t, err)

	s, err := change.Summarize(m)
	require.NoError(t, err)
	assert.Equal(t, change.Summary{Pixels: 3, Valid: 1, Flagged: 1}, s)

	delta, err := m.Band(change.DeltaBand)
	require.NoError(t, err)
	d, ok := delta.At(1)
	require.True(t, ok)
	assert.InDelta(t, -0.4, d, 1e-9)
}

func TestChangeMapAcrossSensors(t *testing.T) {
	repo := &fakeRepository{}
	repo.add(t, catalog.Landsat8, before, scene(t, catalog.Landsat8, day(2017, 7, 10), 0.1,
		map[string][]float64{"B5": {0.9, 0.9}, "B4": {0.1, 0.1}},
		[]float64{0, 0}))
	repo.add(t, catalog.Sentinel2, after, scene(t, catalog.Sentinel2, day(2018, 7, 25), 1000,
		map[string][]float64{"B8": {9000, 2000}, "B4": {1000, 2000}},
		[]float64{0, 0}))

	m, err := New(repo).ComputeChangeMap(context.Background(), ChangeRequest{
		Region:          region,
		Before:          before,
		After:           after,
		Satellite:       catalog.Sentinel2,
		BeforeSatellite: catalog.Landsat8,
		CloudThreshold:  50,
		Index:           catalog.NDVI,
		ChangeThreshold: -0.3,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []catalog.Satellite{catalog.Landsat8, catalog.Sentinel2}, repo.queried)

	flags, err := m.Band(change.FlagBand)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, flags.Values())
}

func TestChangeMapErrors(t *testing.T) {
	cause := errors.New("tile server down")

	_, err := New(&fakeRepository{err: cause}).ComputeChangeMap(context.Background(), ChangeRequest{
		Before: before, After: after, Satellite: catalog.Sentinel2, CloudThreshold: 50, Index: catalog.NDVI, ChangeThreshold: -0.3,
	})
	var repoErr *raster.RepositoryError
	assert.ErrorAs(t, err, &repoErr)
	assert.ErrorIs(t, err, cause)

	_, err = New(&fakeRepository{}).ComputeChangeMap(context.Background(), ChangeRequest{
		Before: before, After: after, Satellite: catalog.Sentinel2, CloudThreshold: 50, Index: catalog.NDVI, ChangeThreshold: -0.3,
	})
	assert.ErrorIs(t, err, raster.ErrEmptyCollection)

	_, err = New(&fakeRepository{}).ComputeChangeMap(context.Background(), ChangeRequest{
		Before: before, After: after, Satellite: "modis", Index: catalog.NDVI,
	})
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}

// landCover is two vegetated pixels (class 1) and two bare ones (class 4).
func landCover(t *testing.T, repo *fakeRepository, dates imagery.DateRange, at time.Time) {
	repo.add(t, catalog.Sentinel2, dates, scene(t, catalog.Sentinel2, at, 1000,
		map[string][]float64{"B8": {8000, 8200, 2000, 2200}},
		[]float64{0, 0, 0, 0}))
}

func polygons(t *testing.T) []samples.Polygon {
	t.Helper()
	p, err := samples.ParsePolygons([]byte(`{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "properties": {"class": 1},
	     "geometry": {"type": "Polygon", "coordinates": [[[132.0, 34.0], [132.002, 34.0], [132.002, 34.001], [132.0, 34.001], [132.0, 34.0]]]}},
	    {"type": "Feature", "properties": {"class": 4},
	     "geometry": {"type": "Polygon", "coordinates": [[[132.002, 34.0], [132.004, 34.0], [132.004, 34.001], [132.002, 34.001], [132.002, 34.0]]]}}
	  ]
	}`))
	require.NoError(t, err)
	return p
}

func classificationRequest(t *testing.T) ClassificationRequest {
	return ClassificationRequest{
		Region:         region,
		Range:          after,
		Satellite:      catalog.Sentinel2,
		CloudThreshold: 50,
		Polygons:       polygons(t),
		TreeCount:      25,
		Seed:           42,
		Scale:          10,
	}
}

func TestComputeClassification(t *testing.T) {
	repo := &fakeRepository{}
	landCover(t, repo, after, day(2018, 7, 25))

	out, err := New(repo, WithWorkers(2)).ComputeClassification(context.Background(), classificationRequest(t))
	require.NoError(t, err)

	b, err := out.Band(forest.ClassificationBand)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 4, 4}, b.Values())
	assert.Equal(t, []bool{true, true, true, true}, b.Validity())
}

func TestComputeClassificationWithChangeFeatures(t *testing.T) {
	repo := &fakeRepository{}
	landCover(t, repo, after, day(2018, 7, 25))
	landCover(t, repo, before, day(2017, 7, 10))

	req := classificationRequest(t)
	req.Before = &before
	req.FeatureBands = []string{"ndvi", ChangeFeature(catalog.NDVI), ChangeFeature(catalog.NDWI)}

	out, err := New(repo).ComputeClassification(context.Background(), req)
	require.NoError(t, err)
	b, err := out.Band(forest.ClassificationBand)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 4, 4}, b.Values())
}

func TestComputeClassificationUnknownFeature(t *testing.T) {
	repo := &fakeRepository{}
	landCover(t, repo, after, day(2018, 7, 25))

	req := classificationRequest(t)
	req.FeatureBands = []string{"ndvi", ChangeFeature(catalog.NDVI)}

	_, err := New(repo).ComputeClassification(context.Background(), req)
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}

type memoryCache struct {
	models map[string]*forest.Model
	hits   int
}

func (c *memoryCache) Get(key string) (*forest.Model, bool) {
	m, ok := c.models[key]
	if ok {
		c.hits++
	}
	return m, ok
}

func (c *memoryCache) Set(key string, m *forest.Model) error {
	c.models[key] = m
	return nil
}

func (c *memoryCache) GenerateKey(params ...interface{}) string { return fmt.Sprint(params...) }

func TestComputeClassificationReusesCachedModel(t *testing.T) {
	repo := &fakeRepository{}
	landCover(t, repo, after, day(2018, 7, 25))
	cache := &memoryCache{models: map[string]*forest.Model{}}
	runner := New(repo, WithModelCache(cache))

	first, err := runner.ComputeClassification(context.Background(), classificationRequest(t))
	require.NoError(t, err)
	second, err := runner.ComputeClassification(context.Background(), classificationRequest(t))
	require.NoError(t, err)

	assert.Len(t, cache.models, 1)
	assert.Equal(t, 1, cache.hits)
	a, _ := first.Band(forest.ClassificationBand)
	b, _ := second.Band(forest.ClassificationBand)
	assert.Equal(t, a.Values(), b.Values())
}
