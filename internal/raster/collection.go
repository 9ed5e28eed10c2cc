package raster

import (
	"fmt"
	"slices"

	"github.com/forest-guardian/slidescan/internal/utils"
)

// Collection is a time-ordered set of rasters sharing one band schema and grid.
type Collection struct {
	images []*Raster
}

// NewCollection orders images by acquisition time. An empty collection is legal.
func NewCollection(images ...*Raster) (*Collection, error) {
	sorted := utils.SortByTime(slices.Clone(images), (*Raster).Time, true)
	if len(sorted) > 0 {
		first := sorted[0]
		for _, img := range sorted[1:] {
			if !img.SameGrid(first) {
				return nil, fmt.Errorf("%w: image at %s is %dx%d, collection is %dx%d",
					ErrAlignment, img.Time().Format("2006-01-02"), img.Width(), img.Height(), first.Width(), first.Height())
			}
			if !slices.Equal(img.BandNames(), first.BandNames()) {
				return nil, fmt.Errorf("%w: image at %s has bands %v, collection has %v",
					ErrSchemaMismatch, img.Time().Format("2006-01-02"), img.BandNames(), first.BandNames())
			}
		}
	}
	return &Collection{images: sorted}, nil
}

func (c *Collection) Len() int { return len(c.images) }

func (c *Collection) At(i int) *Raster { return c.images[i] }

func (c *Collection) Images() []*Raster { return slices.Clone(c.images) }

// Map applies fn to every member and collects the results into a new collection.
func (c *Collection) Map(fn func(*Raster) (*Raster, error)) (*Collection, error) {
	out := make([]*Raster, 0, len(c.images))
	for _, img := range c.images {
		mapped, err := fn(img)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return NewCollection(out...)
}
