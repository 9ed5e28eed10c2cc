package forest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/forest-guardian/slidescan/internal/samples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(class float64, props map[string]float64) samples.Sample {
	p := map[string]float64{"class": class}
	for k, v := range props {
		p[k] = v
	}
	return samples.Sample{Properties: p}
}

// separable is split by x at 0.5; noise is constant and never usable.
func separable() []samples.Sample {
	var out []samples.Sample
	for i := range 20 {
		out = append(out,
			sample(1, map[string]float64{"x": 0.01 * float64(i), "noise": 3}),
			sample(4, map[string]float64{"x": 0.7 + 0.01*float64(i), "noise": 3}),
		)
	}
	return out
}

func features() []string { return []string{"x", "noise"} }

func TestTrainIsReproducible(t *testing.T) {
	a, err := Train(separable(), "class", features(), 25, 42, WithWorkers(1))
	require.NoError(t, err)
	b, err := Train(separable(), "class", features(), 25, 42, WithWorkers(8))
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))

	for _, x := range []float64{0.02, 0.4, 0.75, 0.95} {
		assert.Equal(t, a.Vote([]float64{x, 3}), b.Vote([]float64{x, 3}))
	}
}

func TestTrainLearnsSeparableClasses(t *testing.T) {
	m, err := Train(separable(), "class", features(), 25, 42)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 4}, m.Classes())
	assert.Equal(t, 25, m.TreeCount())
	assert.Equal(t, 1.0, m.Vote([]float64{0.05, 3}))
	assert.Equal(t, 4.0, m.Vote([]float64{0.95, 3}))
}

func TestTrainValidation(t *testing.T) {
	tests := []struct {
		name    string
		samples []samples.Sample
		bands   []string
		want    error
	}{
		{
			name: "no samples",
			want: raster.ErrEmptyInput,
		},
		{
			name:    "unknown feature",
			samples: separable(),
			bands:   []string{"x", "B12"},
			want:    raster.ErrSchemaMismatch,
		},
		{
			name:    "single class",
			samples: []samples.Sample{sample(1, map[string]float64{"x": 1}), sample(1, map[string]float64{"x": 2})},
			bands:   []string{"x"},
			want:    raster.ErrInsufficientSamples,
		},
		{
			name: "invalid samples leave one class",
			samples: []samples.Sample{
				sample(1, map[string]float64{"x": 1}),
				sample(4, map[string]float64{"x": math.NaN()}),
				sample(4.5, map[string]float64{"x": 2}),
				sample(4, map[string]float64{"y": 2}),
			},
			bands: []string{"x"},
			want:  raster.ErrInsufficientSamples,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := tt.bands
			if bands == nil {
				bands = features()
			}
			_, err := Train(tt.samples, "class", bands, 10, 42)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTrainMissingClassProperty(t *testing.T) {
	_, err := Train(separable(), "landcover", features(), 10, 42)
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}

// leaves builds a model whose trees are single leaves voting for the
// given class indices.
func leaves(classes []float64, votes ...int) *Model {
	m := &Model{featureBands: []string{"x"}, classes: classes}
	for _, v := range votes {
		m.trees = append(m.trees, tree{{Feature: -1, Class: v}})
	}
	return m
}

func TestVote(t *testing.T) {
	tests := []struct {
		name  string
		votes []int
		want  float64
	}{
		{name: "seven to three", votes: []int{0, 0, 0, 1, 0, 1, 0, 0, 1, 0}, want: 1},
		{name: "three to seven", votes: []int{1, 1, 0, 1, 1, 0, 1, 0, 1, 1}, want: 4},
		{name: "tie goes to lowest label", votes: []int{1, 0, 1, 0}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leaves([]float64{1, 4}, tt.votes...).Vote([]float64{0}))
		})
	}
}

func TestPredict(t *testing.T) {
	m, err := Train(separable(), "class", features(), 15, 7)
	require.NoError(t, err)

	r, err := raster.New(3, 1, []raster.Band{
		raster.NewBand("noise", []float64{3, 3, 3}, nil),
		raster.NewBand("x", []float64{0.05, 0.95, 0.5}, []bool{true, true, false}),
	}, raster.WithGeoTransform(raster.GeoTransform{132, 0.001, 0, 34, 0, -0.001}))
	require.NoError(t, err)

	out, err := Predict(m, r, []string{"noise", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{ClassificationBand}, out.BandNames())
	assert.Equal(t, r.GeoTransform(), out.GeoTransform())

	b, err := out.Band(ClassificationBand)
	require.NoError(t, err)
	v, ok := b.At(0)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = b.At(1)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	_, ok = b.At(2)
	assert.False(t, ok, "masked features give a masked label")
}

func TestPredictErrors(t *testing.T) {
	m := leaves([]float64{1, 4}, 0)
	empty, err := raster.New(0, 0, nil)
	require.NoError(t, err)
	other, err := raster.New(1, 1, []raster.Band{raster.NewBand("y", []float64{1}, nil)})
	require.NoError(t, err)

	_, err = Predict(m, empty, []string{"x"})
	assert.ErrorIs(t, err, raster.ErrEmptyInput)

	_, err = Predict(m, other, []string{"y"})
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)

	_, err = Predict(m, other, []string{"x"})
	assert.ErrorIs(t, err, raster.ErrSchemaMismatch)
}

func TestModelJSONRejectsMalformedTrees(t *testing.T) {
	var m Model
	err := json.Unmarshal([]byte(`{"feature_bands":["x"],"classes":[1,4],"trees":[[{"f":0,"t":0.5,"l":0,"r":2}]]}`), &m)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"feature_bands":["x"],"classes":[1,4],"trees":[[{"f":0,"t":0.5,"l":1,"r":2},{"f":-1},{"f":-1,"c":1}]]}`), &m)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Vote([]float64{0.2}))
	assert.Equal(t, 4.0, m.Vote([]float64{0.8}))
}
