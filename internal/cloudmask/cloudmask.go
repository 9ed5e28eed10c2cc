// Package cloudmask turns a sensor's bit-encoded quality band into a
// per-pixel validity mask.
package cloudmask

import (
	"fmt"
	"math"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
)

type decoder func(r *raster.Raster, qa raster.Band, s catalog.BandSchema) []bool

var decoders = map[catalog.MaskPolicy]decoder{
	catalog.FlagBitsZero:          decodeFlagBitsZero,
	catalog.ConfidenceCombination: decodeConfidenceCombination,
}

// Mask returns true for every pixel that is clear according to s.
func Mask(r *raster.Raster, s catalog.BandSchema) ([]bool, error) {
	qa, err := r.Band(s.QualityBand)
	if err != nil {
		return nil, fmt.Errorf("quality band for %s: %w", s.Satellite, err)
	}
	decode, ok := decoders[s.Policy]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for mask policy %s", raster.ErrSchemaMismatch, s.Policy)
	}
	return decode(r, qa, s), nil
}

// Apply masks r, drops the quality band and scales the remaining bands.
func Apply(r *raster.Raster, s catalog.BandSchema) (*raster.Raster, error) {
	mask, err := Mask(r, s)
	if err != nil {
		return nil, err
	}
	masked, err := r.UpdateMask(mask)
	if err != nil {
		return nil, err
	}
	masked, err = masked.Drop(s.QualityBand)
	if err != nil {
		return nil, err
	}
	if s.Scale == 0 || s.Scale == 1 {
		return masked, nil
	}

	bands := make([]raster.Band, 0, len(masked.BandNames()))
	for _, name := range masked.BandNames() {
		b, _ := masked.Band(name)
		values := b.Values()
		for i := range values {
			values[i] *= s.Scale
		}
		bands = append(bands, raster.NewBand(name, values, b.Validity()))
	}
	return raster.New(masked.Width(), masked.Height(), bands,
		raster.WithTime(masked.Time()), raster.WithGeoTransform(masked.GeoTransform()), raster.WithMask(masked.Mask()))
}

// flags reads a quality sample as an integer bit field. Masked, NaN or
// negative samples cannot be decoded.
func flags(qa raster.Band, i int) (uint64, bool) {
	v, ok := qa.At(i)
	if !ok || v < 0 || math.IsInf(v, 0) {
		return 0, false
	}
	return uint64(v), true
}

func bit(f uint64, n uint) bool {
	return f&(1<<n) != 0
}

func decodeFlagBitsZero(r *raster.Raster, qa raster.Band, s catalog.BandSchema) []bool {
	mask := make([]bool, r.Len())
	for i := range mask {
		f, ok := flags(qa, i)
		if !ok {
			continue
		}
		clear := true
		for _, n := range s.ClearBits {
			if bit(f, n) {
				clear = false
				break
			}
		}
		mask[i] = clear
	}
	return mask
}

func decodeConfidenceCombination(r *raster.Raster, qa raster.Band, s catalog.BandSchema) []bool {
	present := r.PresentInAllBands()
	mask := make([]bool, r.Len())
	for i := range mask {
		f, ok := flags(qa, i)
		if !ok {
			continue
		}
		cloud := (bit(f, s.CloudBit) && bit(f, s.ConfidenceBit)) || bit(f, s.ShadowBit)
		mask[i] = !cloud && present[i]
	}
	return mask
}
