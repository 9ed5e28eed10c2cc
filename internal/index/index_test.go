package index

import (
	"testing"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedDifference(t *testing.T) {
	nir := []float64{0.5, 0.3, 0, 0.4, -0.2}
	red := []float64{0.1, 0.3, 0, 0.2, 0.2}
	r, err := raster.New(5, 1, []raster.Band{
		raster.NewBand("nir", nir, nil),
		raster.NewBand("red", red, []bool{true, true, true, false, true}),
	})
	require.NoError(t, err)

	b, err := NormalizedDifference(r, "nir", "red", "nd")
	require.NoError(t, err)
	assert.Equal(t, "nd", b.Name())

	for i := range nir {
		v, ok := b.At(i)
		switch i {
		case 2, 4:
			assert.False(t, ok, "zero denominator at %d must be masked", i)
		case 3:
			assert.False(t, ok, "masked input at %d must be masked", i)
		default:
			require.True(t, ok)
			assert.InDelta(t, (nir[i]-red[i])/(nir[i]+red[i]), v, 1e-12)
		}
	}
}

func TestNormalizedDifferenceUnknownBand(t *testing.T) {
	r, err := raster.New(1, 1, []raster.Band{raster.NewBand("nir", []float64{1}, nil)})
	require.NoError(t, err)

	_, err = NormalizedDifference(r, "nir", "red", "nd")
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}

func TestAddIndicesUsesCatalogPairs(t *testing.T) {
	s, err := catalog.Lookup(catalog.Landsat8)
	require.NoError(t, err)
	r, err := raster.New(1, 1, []raster.Band{
		raster.NewBand("B4", []float64{0.1}, nil),
		raster.NewBand("B5", []float64{0.5}, nil),
		raster.NewBand("B7", []float64{0.3}, nil),
	})
	require.NoError(t, err)

	out, err := AddIndices(r, s, catalog.NDVI, catalog.NDWI)
	require.NoError(t, err)
	assert.Equal(t, []string{"B4", "B5", "B7", "ndvi", "ndwi"}, out.BandNames())

	ndvi, _ := out.Band("ndvi")
	v, ok := ndvi.At(0)
	require.True(t, ok)
	assert.InDelta(t, 0.4/0.6, v, 1e-12)

	ndwi, _ := out.Band("ndwi")
	v, ok = ndwi.At(0)
	require.True(t, ok)
	assert.InDelta(t, 0.2/0.8, v, 1e-12)
}

func TestComputeUnknownIndex(t *testing.T) {
	s, err := catalog.Lookup(catalog.Sentinel2)
	require.NoError(t, err)
	r, err := raster.New(1, 1, nil)
	require.NoError(t, err)

	_, err = Compute(r, s, "evi")
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}
