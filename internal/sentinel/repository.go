// Package sentinel serves Sentinel-2 scenes from the Copernicus Data Space
// Process API as an imagery repository.
package sentinel

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	ProcessURL   string
	// CacheDir keeps downloaded GeoTIFFs between runs.
	CacheDir string
	// Resolution is the output ground resolution in metres.
	Resolution float64
}

type Repository struct {
	cfg       Config
	client    *http.Client
	read      imagery.SceneReader
	logger    *slog.Logger
	retries   int
	retryWait time.Duration
	progress  bool
}

type Option func(*Repository)

func WithSceneReader(read imagery.SceneReader) Option {
	return func(r *Repository) { r.read = read }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithRetries sets how many times a throttled or failed request is sent.
func WithRetries(attempts int, wait time.Duration) Option {
	return func(r *Repository) { r.retries, r.retryWait = max(1, attempts), wait }
}

func WithProgress(show bool) Option {
	return func(r *Repository) { r.progress = show }
}

// New builds a repository whose HTTP client authenticates with OAuth2
// client credentials.
func New(cfg Config, opts ...Option) *Repository {
	if cfg.Resolution <= 0 {
		cfg.Resolution = 10
	}
	oauth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	r := &Repository{
		cfg:       cfg,
		client:    oauth.Client(context.Background()),
		read:      imagery.ReadGeoTIFF,
		logger:    slog.Default(),
		retries:   3,
		retryWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query requests one image per day in the range. Days without data, with
// no clear pixel, or whose cloudy share is not below MaxCloudCover are
// left out of the collection.
func (r *Repository) Query(ctx context.Context, q imagery.Query) (*raster.Collection, error) {
	if q.Satellite != catalog.Sentinel2 {
		return nil, fmt.Errorf("%w: the process API serves %s only, got %q", raster.ErrSchemaMismatch, catalog.Sentinel2, q.Satellite)
	}
	schema, err := catalog.Lookup(q.Satellite)
	if err != nil {
		return nil, err
	}
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}
	if q.Region.Max[0] <= q.Region.Min[0] || q.Region.Max[1] <= q.Region.Min[1] {
		return nil, fmt.Errorf("query region is empty")
	}

	var days []time.Time
	for d := q.Range.Start; d.Before(q.Range.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	var bar *progressbar.ProgressBar
	if r.progress {
		bar = progressbar.Default(int64(len(days)), "Fetching "+string(q.Satellite)+" images")
	} else {
		bar = progressbar.DefaultSilent(int64(len(days)))
	}

	var scenes []*raster.Raster
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scene, err := r.scene(ctx, schema, q, day)
		bar.Add(1)
		if errors.Is(err, ErrImageNotFound) {
			r.logger.Debug("no image", "date", day.Format(time.DateOnly))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", day.Format(time.DateOnly), err)
		}
		if cover := cloudCover(scene, schema); cover >= q.MaxCloudCover {
			r.logger.Debug("skipping cloudy image", "date", day.Format(time.DateOnly), "cloud_cover", cover)
			continue
		}
		scenes = append(scenes, scene)
	}
	r.logger.Info("fetched images", "satellite", q.Satellite, "range", q.Range.String(), "days", len(days), "scenes", len(scenes))
	return raster.NewCollection(scenes...)
}

func (r *Repository) scene(ctx context.Context, schema catalog.BandSchema, q imagery.Query, day time.Time) (*raster.Raster, error) {
	path := r.cachePath(q.Region, day)
	if _, err := os.Stat(path); err != nil {
		body, err := r.requestImage(ctx, requestPayload(q.Region, day, schema.Bands, q.MaxCloudCover, r.cfg.Resolution))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create image directory: %w", err)
		}
		if err := os.WriteFile(path, body, 0644); err != nil {
			return nil, fmt.Errorf("failed to write image file: %w", err)
		}
	}

	scene, err := r.read(path, schema.RasterBands(), day)
	if err != nil {
		return nil, err
	}
	for _, ok := range scene.PresentInAllBands() {
		if ok {
			return scene, nil
		}
	}
	return nil, ErrImageNotFound
}

func (r *Repository) cachePath(region orb.Bound, day time.Time) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%v_%v_%v", region.Min, region.Max, r.cfg.Resolution)))
	return filepath.Join(r.cfg.CacheDir, hex.EncodeToString(h[:8]), day.Format(time.DateOnly)+".tif")
}

// cloudCover is the percentage of data pixels flagged cloudy by the quality band.
func cloudCover(scene *raster.Raster, schema catalog.BandSchema) float64 {
	qa, err := scene.Band(schema.QualityBand)
	if err != nil {
		return 100
	}
	var data, cloudy int
	for i := range qa.Len() {
		v, ok := qa.At(i)
		if !ok {
			continue
		}
		data++
		if v != 0 {
			cloudy++
		}
	}
	if data == 0 {
		return 100
	}
	return 100 * float64(cloudy) / float64(data)
}
