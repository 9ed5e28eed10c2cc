// Package change flags disturbance from the difference of two composites.
package change

import (
	"fmt"

	"github.com/forest-guardian/slidescan/internal/raster"
)

const (
	DeltaBand = "delta"
	FlagBand  = "flag"
)

// Delta computes after - before for the band idx. Pixels masked on either
// side are masked.
func Delta(before, after *raster.Raster, idx, name string) (raster.Band, error) {
	if !before.SameGrid(after) {
		return raster.Band{}, fmt.Errorf("%w: before is %dx%d, after is %dx%d",
			raster.ErrAlignment, before.Width(), before.Height(), after.Width(), after.Height())
	}
	b, err := before.Band(idx)
	if err != nil {
		return raster.Band{}, fmt.Errorf("before composite: %w", err)
	}
	a, err := after.Band(idx)
	if err != nil {
		return raster.Band{}, fmt.Errorf("after composite: %w", err)
	}

	values := make([]float64, after.Len())
	valid := make([]bool, after.Len())
	for i := range values {
		vb, okB := b.At(i)
		va, okA := a.At(i)
		if !okB || !okA {
			continue
		}
		values[i] = va - vb
		valid[i] = true
	}
	return raster.NewBand(name, values, valid), nil
}

// Detect returns a change map with a signed delta band and a flag band
// that is 1 where delta < threshold and 0 elsewhere. Both bands are masked
// wherever delta is undefined.
func Detect(before, after *raster.Raster, idx string, threshold float64) (*raster.Raster, error) {
	delta, err := Delta(before, after, idx, DeltaBand)
	if err != nil {
		return nil, err
	}

	flags := make([]float64, delta.Len())
	valid := make([]bool, delta.Len())
	for i := range flags {
		d, ok := delta.At(i)
		if !ok {
			continue
		}
		valid[i] = true
		if d < threshold {
			flags[i] = 1
		}
	}

	return raster.New(after.Width(), after.Height(),
		[]raster.Band{delta, raster.NewBand(FlagBand, flags, valid)},
		raster.WithTime(after.Time()),
		raster.WithGeoTransform(after.GeoTransform()))
}

// Summary counts the pixels of a change map.
type Summary struct {
	Pixels  int `csv:"pixels"`
	Valid   int `csv:"valid"`
	Flagged int `csv:"flagged"`
}

func Summarize(m *raster.Raster) (Summary, error) {
	flags, err := m.Band(FlagBand)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Pixels: m.Len()}
	for i := range m.Len() {
		f, ok := flags.At(i)
		if !ok {
			continue
		}
		s.Valid++
		if f == 1 {
			s.Flagged++
		}
	}
	return s, nil
}
