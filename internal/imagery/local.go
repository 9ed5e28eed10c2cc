package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
)

// SceneRecord is one row of the local scene index.
type SceneRecord struct {
	Satellite  string  `csv:"satellite"`
	Date       string  `csv:"date"`
	CloudCover float64 `csv:"cloud_cover"`
	Path       string  `csv:"path"`
	MinLon     float64 `csv:"min_lon"`
	MinLat     float64 `csv:"min_lat"`
	MaxLon     float64 `csv:"max_lon"`
	MaxLat     float64 `csv:"max_lat"`
}

func (s SceneRecord) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{s.MinLon, s.MinLat}, Max: orb.Point{s.MaxLon, s.MaxLat}}
}

type scene struct {
	SceneRecord
	acquired time.Time
}

// SceneReader loads the raster of one indexed scene.
type SceneReader func(path string, bandNames []string, acquired time.Time) (*raster.Raster, error)

// LocalRepository serves GeoTIFF scenes listed in a CSV index. Relative
// paths are resolved against the index directory.
type LocalRepository struct {
	scenes []scene
	read   SceneReader
	logger *slog.Logger
}

type LocalOption func(*LocalRepository)

func WithSceneReader(read SceneReader) LocalOption {
	return func(r *LocalRepository) { r.read = read }
}

func WithLogger(logger *slog.Logger) LocalOption {
	return func(r *LocalRepository) { r.logger = logger }
}

func OpenLocal(indexPath string, opts ...LocalOption) (*LocalRepository, error) {
	file, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene index: %w", err)
	}
	defer file.Close()

	var records []*SceneRecord
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, fmt.Errorf("failed to parse scene index %s: %w", indexPath, err)
	}

	root := filepath.Dir(indexPath)
	for _, rec := range records {
		if !filepath.IsAbs(rec.Path) {
			rec.Path = filepath.Join(root, rec.Path)
		}
	}
	return NewLocalRepository(records, opts...)
}

func NewLocalRepository(records []*SceneRecord, opts ...LocalOption) (*LocalRepository, error) {
	repo := &LocalRepository{read: ReadGeoTIFF, logger: slog.Default()}
	for _, opt := range opts {
		opt(repo)
	}
	for i, rec := range records {
		acquired, err := time.Parse(time.DateOnly, rec.Date)
		if err != nil {
			return nil, fmt.Errorf("scene index row %d: invalid date %q: %w", i+1, rec.Date, err)
		}
		repo.scenes = append(repo.scenes, scene{SceneRecord: *rec, acquired: acquired})
	}
	return repo, nil
}

// Scenes lists the index rows matching q without reading any raster.
func (r *LocalRepository) Scenes(q Query) []SceneRecord {
	var out []SceneRecord
	for _, s := range r.scenes {
		if s.Satellite != string(q.Satellite) || !q.Range.Contains(s.acquired) {
			continue
		}
		if !s.Bound().Intersects(q.Region) || s.CloudCover >= q.MaxCloudCover {
			continue
		}
		out = append(out, s.SceneRecord)
	}
	return out
}

func (r *LocalRepository) Query(ctx context.Context, q Query) (*raster.Collection, error) {
	schema, err := catalog.Lookup(q.Satellite)
	if err != nil {
		return nil, err
	}

	matches := r.Scenes(q)
	r.logger.Debug("scene index query", "satellite", q.Satellite, "range", q.Range.String(), "matches", len(matches))

	images := make([]*raster.Raster, 0, len(matches))
	for _, rec := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acquired, _ := time.Parse(time.DateOnly, rec.Date)
		img, err := r.read(rec.Path, schema.RasterBands(), acquired)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return raster.NewCollection(images...)
}
