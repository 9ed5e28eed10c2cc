package forest

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/forest-guardian/slidescan/internal/raster"
	"golang.org/x/sync/errgroup"
)

// ClassificationBand names the single band of a classification map.
const ClassificationBand = "classification"

// Predict labels every pixel of r whose feature bands are all valid. The
// feature bands must be the model's, in any order.
func Predict(m *Model, r *raster.Raster, featureBands []string) (*raster.Raster, error) {
	if r.Len() == 0 {
		return nil, fmt.Errorf("%w: raster has no pixels", raster.ErrEmptyInput)
	}
	if !sameSet(featureBands, m.featureBands) {
		return nil, fmt.Errorf("%w: model was trained on %v, got %v", raster.ErrSchemaMismatch, m.featureBands, featureBands)
	}
	bands, err := r.Bands(m.featureBands...)
	if err != nil {
		return nil, err
	}

	labels := make([]float64, r.Len())
	valid := make([]bool, r.Len())
	width := r.Width()

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for y := range r.Height() {
		g.Go(func() error {
			features := make([]float64, len(bands))
			for x := range width {
				i := y*width + x
				ok := true
				for f, b := range bands {
					if features[f], ok = b.At(i); !ok {
						break
					}
				}
				if ok {
					labels[i] = m.Vote(features)
					valid[i] = true
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return raster.New(r.Width(), r.Height(),
		[]raster.Band{raster.NewBand(ClassificationBand, labels, valid)},
		raster.WithTime(r.Time()), raster.WithGeoTransform(r.GeoTransform()))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
