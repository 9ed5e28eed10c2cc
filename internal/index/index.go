// Package index derives normalized-difference spectral indices.
package index

import (
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
)

// NormalizedDifference computes (A-B)/(A+B) into a band called name.
// Pixels where either input is masked or A+B is zero are masked.
func NormalizedDifference(r *raster.Raster, a, b, name string) (raster.Band, error) {
	bandA, err := r.Band(a)
	if err != nil {
		return raster.Band{}, err
	}
	bandB, err := r.Band(b)
	if err != nil {
		return raster.Band{}, err
	}

	values := make([]float64, r.Len())
	valid := make([]bool, r.Len())
	for i := range values {
		va, okA := bandA.At(i)
		vb, okB := bandB.At(i)
		if !okA || !okB {
			continue
		}
		denominator := va + vb
		if denominator == 0 {
			continue
		}
		values[i] = (va - vb) / denominator
		valid[i] = true
	}
	return raster.NewBand(name, values, valid), nil
}

// Compute derives idx from the band pair the catalog assigns to s.
func Compute(r *raster.Raster, s catalog.BandSchema, idx catalog.IndexName) (raster.Band, error) {
	pair, err := s.IndexPair(idx)
	if err != nil {
		return raster.Band{}, err
	}
	return NormalizedDifference(r, pair.A, pair.B, string(idx))
}

// AddIndices appends one band per index, named after the index.
func AddIndices(r *raster.Raster, s catalog.BandSchema, indices ...catalog.IndexName) (*raster.Raster, error) {
	bands := make([]raster.Band, 0, len(indices))
	for _, idx := range indices {
		b, err := Compute(r, s, idx)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return r.AddBands(bands...)
}
