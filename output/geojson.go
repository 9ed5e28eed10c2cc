package output

import (
	"fmt"
	"os"

	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ChangeFeatures returns the footprint of every flagged pixel as a polygon
// feature carrying its delta and pixel position.
func ChangeFeatures(m *raster.Raster) (*geojson.FeatureCollection, error) {
	geo := m.GeoTransform()
	if geo.IsZero() {
		return nil, fmt.Errorf("%w: change map has no georeferencing", raster.ErrAlignment)
	}
	delta, err := m.Band(change.DeltaBand)
	if err != nil {
		return nil, err
	}
	flags, err := m.Band(change.FlagBand)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i := range m.Len() {
		if f, ok := flags.At(i); !ok || f != 1 {
			continue
		}
		d, _ := delta.At(i)
		x, y := i%m.Width(), i/m.Width()
		fx, fy := float64(x), float64(y)
		ring := orb.Ring{
			geo.Apply(fx, fy),
			geo.Apply(fx+1, fy),
			geo.Apply(fx+1, fy+1),
			geo.Apply(fx, fy+1),
			geo.Apply(fx, fy),
		}
		feature := geojson.NewFeature(orb.Polygon{ring})
		feature.Properties["delta"] = d
		feature.Properties["x"] = x
		feature.Properties["y"] = y
		fc.Append(feature)
	}
	return fc, nil
}

func WriteChangeGeoJSON(m *raster.Raster, path string) error {
	fc, err := ChangeFeatures(m)
	if err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write GeoJSON file: %w", err)
	}
	return nil
}
