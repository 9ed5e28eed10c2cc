// Package samples extracts labeled training samples from a raster under
// labeled polygons.
package samples

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// MetersPerDegree converts a ground scale to degrees on an EPSG:4326 grid.
const MetersPerDegree = 111_000.0

// Sample holds the band values and class property of one sampled pixel.
// Masked bands are absent.
type Sample struct {
	Properties map[string]float64
}

func (s Sample) Value(name string) (float64, bool) {
	v, ok := s.Properties[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Polygon is a labeled training geometry: an orb.Polygon or orb.MultiPolygon.
type Polygon struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// LoadPolygons reads the polygon features of a GeoJSON FeatureCollection.
func LoadPolygons(path string) ([]Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training polygons: %w", err)
	}
	return ParsePolygons(data)
}

func ParsePolygons(data []byte) ([]Polygon, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse training polygons: %w", err)
	}
	polygons := make([]Polygon, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %s", i, f.Geometry.GeoJSONType())
		}
		polygons = append(polygons, Polygon{Geometry: f.Geometry, Properties: f.Properties})
	}
	return polygons, nil
}

// Label returns the numeric value of the class property.
func (p Polygon) Label(classProperty string) (float64, error) {
	switch v := p.Properties[classProperty].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: polygon has no numeric %q property", raster.ErrSchemaMismatch, classProperty)
}

func (p Polygon) contains(pt orb.Point) bool {
	switch g := p.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	}
	return false
}

// Extract samples every band of r once per grid cell covered by each
// polygon. The grid is aligned to the raster and spaced scale metres
// apart, never finer than one pixel; scale <= 0 samples every pixel.
func Extract(polygons []Polygon, r *raster.Raster, classProperty string, scale float64) ([]Sample, error) {
	geo := r.GeoTransform()
	if geo.IsZero() {
		return nil, fmt.Errorf("%w: raster has no georeferencing", raster.ErrAlignment)
	}

	step := 1.0
	if scale > 0 {
		pixelWidth, _ := geo.PixelSize()
		if deg := scale / MetersPerDegree; deg > pixelWidth {
			step = deg / pixelWidth
		}
	}

	names := r.BandNames()
	bands, err := r.Bands(names...)
	if err != nil {
		return nil, err
	}

	var out []Sample
	for n, polygon := range polygons {
		label, err := polygon.Label(classProperty)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", n, err)
		}

		x0, y0, x1, y1, ok := window(geo, polygon.Geometry.Bound(), r.Width(), r.Height())
		if !ok {
			continue
		}
		seen := make(map[int]struct{})
		for cy := int(float64(y0) / step); ; cy++ {
			py := (float64(cy) + 0.5) * step
			if py >= float64(y1) {
				break
			}
			for cx := int(float64(x0) / step); ; cx++ {
				px := (float64(cx) + 0.5) * step
				if px >= float64(x1) {
					break
				}
				if !polygon.contains(geo.Apply(px, py)) {
					continue
				}
				i := int(py)*r.Width() + int(px)
				if _, dup := seen[i]; dup {
					continue
				}
				seen[i] = struct{}{}

				props := make(map[string]float64, len(bands)+1)
				for _, b := range bands {
					if v, ok := b.At(i); ok {
						props[b.Name()] = v
					}
				}
				props[classProperty] = label
				out = append(out, Sample{Properties: props})
			}
		}
	}
	return out, nil
}

// window returns the pixel rectangle [x0, x1) x [y0, y1) covering bound,
// clamped to the raster.
func window(geo raster.GeoTransform, bound orb.Bound, width, height int) (int, int, int, int, bool) {
	corners := []orb.Point{bound.Min, bound.Max, {bound.Min[0], bound.Max[1]}, {bound.Max[0], bound.Min[1]}}
	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		col, row, ok := geo.Invert(c)
		if !ok {
			return 0, 0, 0, 0, false
		}
		minCol, maxCol = math.Min(minCol, col), math.Max(maxCol, col)
		minRow, maxRow = math.Min(minRow, row), math.Max(maxRow, row)
	}
	x0 := max(0, int(math.Floor(minCol)))
	y0 := max(0, int(math.Floor(minRow)))
	x1 := min(width, int(math.Ceil(maxCol)))
	y1 := min(height, int(math.Ceil(maxRow)))
	return x0, y0, x1, y1, x0 < x1 && y0 < y1
}

// ClassBand names the band written by Rasterize.
const ClassBand = "class"

// Rasterize burns the class label of the first polygon containing each
// pixel centre into a single band on r's grid. Uncovered pixels are masked.
func Rasterize(polygons []Polygon, r *raster.Raster, classProperty string) (*raster.Raster, error) {
	geo := r.GeoTransform()
	if geo.IsZero() {
		return nil, fmt.Errorf("%w: raster has no georeferencing", raster.ErrAlignment)
	}
	values := make([]float64, r.Len())
	valid := make([]bool, r.Len())
	for n, polygon := range polygons {
		label, err := polygon.Label(classProperty)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", n, err)
		}
		x0, y0, x1, y1, ok := window(geo, polygon.Geometry.Bound(), r.Width(), r.Height())
		if !ok {
			continue
		}
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				i := y*r.Width() + x
				if valid[i] || !polygon.contains(geo.PixelCenter(x, y)) {
					continue
				}
				values[i], valid[i] = label, true
			}
		}
	}
	return raster.New(r.Width(), r.Height(),
		[]raster.Band{raster.NewBand(ClassBand, values, valid)},
		raster.WithGeoTransform(geo))
}
