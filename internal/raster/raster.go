package raster

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/paulmach/orb"
)

// Band is a named array of samples with an optional per-sample validity.
// A nil validity means every sample is usable.
type Band struct {
	name   string
	values []float64
	valid  []bool
}

// NewBand copies values and valid into a new band.
func NewBand(name string, values []float64, valid []bool) Band {
	return Band{
		name:   name,
		values: slices.Clone(values),
		valid:  slices.Clone(valid),
	}
}

func (b Band) Name() string { return b.name }

func (b Band) Len() int { return len(b.values) }

// At returns the sample at i and whether it is usable. NaN samples are never usable.
func (b Band) At(i int) (float64, bool) {
	v := b.values[i]
	if math.IsNaN(v) {
		return v, false
	}
	if b.valid != nil && !b.valid[i] {
		return v, false
	}
	return v, true
}

// Values returns a copy of the raw samples, masked ones included.
func (b Band) Values() []float64 { return slices.Clone(b.values) }

// Validity returns a copy of the per-sample validity.
func (b Band) Validity() []bool {
	out := make([]bool, len(b.values))
	for i := range out {
		_, out[i] = b.At(i)
	}
	return out
}

// Renamed returns the same samples under another name.
func (b Band) Renamed(name string) Band {
	b.name = name
	return b
}

func (b Band) masked(mask []bool) Band {
	if mask == nil {
		return b
	}
	valid := make([]bool, len(b.values))
	for i := range valid {
		valid[i] = mask[i] && (b.valid == nil || b.valid[i])
	}
	b.valid = valid
	return b
}

// Raster is an immutable grid of aligned bands. The raster mask is folded
// into every band at construction, so Band.At reflects both.
type Raster struct {
	width, height int
	bands         []Band
	index         map[string]int
	mask          []bool
	time          time.Time
	geo           GeoTransform
}

type Option func(*Raster)

func WithTime(t time.Time) Option {
	return func(r *Raster) { r.time = t }
}

func WithGeoTransform(gt GeoTransform) Option {
	return func(r *Raster) { r.geo = gt }
}

// WithMask sets the raster-level validity mask.
func WithMask(mask []bool) Option {
	return func(r *Raster) { r.mask = slices.Clone(mask) }
}

// New checks that every band and the mask match width x height.
func New(width, height int, bands []Band, opts ...Option) (*Raster, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: negative size %dx%d", ErrAlignment, width, height)
	}
	r := &Raster{
		width:  width,
		height: height,
		index:  make(map[string]int, len(bands)),
	}
	for _, opt := range opts {
		opt(r)
	}

	size := width * height
	if r.mask != nil && len(r.mask) != size {
		return nil, fmt.Errorf("%w: mask has %d samples, grid has %d", ErrAlignment, len(r.mask), size)
	}

	r.bands = make([]Band, 0, len(bands))
	for _, b := range bands {
		if len(b.values) != size {
			return nil, fmt.Errorf("%w: band %q has %d samples, grid has %d", ErrAlignment, b.name, len(b.values), size)
		}
		if b.valid != nil && len(b.valid) != size {
			return nil, fmt.Errorf("%w: band %q validity has %d samples, grid has %d", ErrAlignment, b.name, len(b.valid), size)
		}
		if _, dup := r.index[b.name]; dup {
			return nil, fmt.Errorf("%w: duplicate band %q", ErrSchemaMismatch, b.name)
		}
		r.index[b.name] = len(r.bands)
		r.bands = append(r.bands, b.masked(r.mask))
	}
	return r, nil
}

func (r *Raster) Width() int { return r.width }

func (r *Raster) Height() int { return r.height }

// Len is the number of pixels.
func (r *Raster) Len() int { return r.width * r.height }

func (r *Raster) Time() time.Time { return r.time }

func (r *Raster) GeoTransform() GeoTransform { return r.geo }

func (r *Raster) BandNames() []string {
	names := make([]string, len(r.bands))
	for i, b := range r.bands {
		names[i] = b.name
	}
	return names
}

func (r *Raster) HasBand(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *Raster) Band(name string) (Band, error) {
	i, ok := r.index[name]
	if !ok {
		return Band{}, fmt.Errorf("%w: band %q not in %v", ErrSchemaMismatch, name, r.BandNames())
	}
	return r.bands[i], nil
}

// Bands returns the named bands in the requested order.
func (r *Raster) Bands(names ...string) ([]Band, error) {
	out := make([]Band, 0, len(names))
	for _, name := range names {
		b, err := r.Band(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Mask returns the raster-level validity, nil when every pixel is usable.
func (r *Raster) Mask() []bool { return slices.Clone(r.mask) }

// Valid reports the raster-level validity of pixel i.
func (r *Raster) Valid(i int) bool {
	return r.mask == nil || r.mask[i]
}

// PresentInAllBands marks the pixels that are usable in every band.
func (r *Raster) PresentInAllBands() []bool {
	out := make([]bool, r.Len())
	for i := range out {
		out[i] = r.Valid(i)
		for _, b := range r.bands {
			if !out[i] {
				break
			}
			_, out[i] = b.At(i)
		}
	}
	return out
}

func (r *Raster) derive(bands []Band, mask []bool) (*Raster, error) {
	return New(r.width, r.height, bands, WithTime(r.time), WithGeoTransform(r.geo), WithMask(mask))
}

// UpdateMask intersects the raster mask with mask.
func (r *Raster) UpdateMask(mask []bool) (*Raster, error) {
	if len(mask) != r.Len() {
		return nil, fmt.Errorf("%w: mask has %d samples, grid has %d", ErrAlignment, len(mask), r.Len())
	}
	merged := make([]bool, len(mask))
	for i := range merged {
		merged[i] = mask[i] && r.Valid(i)
	}
	return r.derive(r.bands, merged)
}

// Select keeps only the named bands, in the given order.
func (r *Raster) Select(names ...string) (*Raster, error) {
	bands, err := r.Bands(names...)
	if err != nil {
		return nil, err
	}
	return r.derive(bands, r.mask)
}

// Drop removes the named bands. Unknown names are ignored.
func (r *Raster) Drop(names ...string) (*Raster, error) {
	bands := make([]Band, 0, len(r.bands))
	for _, b := range r.bands {
		if !slices.Contains(names, b.name) {
			bands = append(bands, b)
		}
	}
	return r.derive(bands, r.mask)
}

// AddBands appends bands; a name already present fails with ErrSchemaMismatch.
func (r *Raster) AddBands(bands ...Band) (*Raster, error) {
	all := append(slices.Clone(r.bands), bands...)
	return r.derive(all, r.mask)
}

// Clip masks every pixel whose center falls outside bound. Rasters
// without georeferencing are returned unchanged.
func (r *Raster) Clip(bound orb.Bound) (*Raster, error) {
	if r.geo.IsZero() {
		return r, nil
	}
	mask := make([]bool, r.Len())
	for y := range r.height {
		for x := range r.width {
			mask[y*r.width+x] = bound.Contains(r.geo.PixelCenter(x, y))
		}
	}
	return r.UpdateMask(mask)
}

// SameGrid reports whether o shares r's dimensions.
func (r *Raster) SameGrid(o *Raster) bool {
	return r.width == o.width && r.height == o.height
}
