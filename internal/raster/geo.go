package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform is an affine pixel-to-world transform in GDAL order:
// origin x, pixel width, row rotation, origin y, column rotation, pixel height.
type GeoTransform [6]float64

// IsZero reports whether the raster carries no georeferencing.
func (gt GeoTransform) IsZero() bool {
	return gt == GeoTransform{}
}

// Apply maps fractional pixel coordinates to world coordinates.
func (gt GeoTransform) Apply(col, row float64) orb.Point {
	return orb.Point{
		gt[0] + gt[1]*col + gt[2]*row,
		gt[3] + gt[4]*col + gt[5]*row,
	}
}

// Invert maps a world point to fractional pixel coordinates.
func (gt GeoTransform) Invert(p orb.Point) (float64, float64, bool) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, false
	}
	dx, dy := p[0]-gt[0], p[1]-gt[3]
	return (gt[5]*dx - gt[2]*dy) / det, (gt[1]*dy - gt[4]*dx) / det, true
}

// PixelCenter returns the world coordinates of the center of pixel (x, y).
func (gt GeoTransform) PixelCenter(x, y int) orb.Point {
	return gt.Apply(float64(x)+0.5, float64(y)+0.5)
}

// Pixel returns the pixel containing the world point p.
func (gt GeoTransform) Pixel(p orb.Point) (int, int, bool) {
	col, row, ok := gt.Invert(p)
	if !ok {
		return 0, 0, false
	}
	return int(math.Floor(col)), int(math.Floor(row)), true
}

// PixelSize returns the absolute pixel width and height in world units.
func (gt GeoTransform) PixelSize() (float64, float64) {
	return math.Hypot(gt[1], gt[4]), math.Hypot(gt[2], gt[5])
}

// Bound returns the world extent of a width x height grid.
func (gt GeoTransform) Bound(width, height int) orb.Bound {
	corners := []orb.Point{
		{gt[0], gt[3]},
		{gt[0] + gt[1]*float64(width), gt[3] + gt[4]*float64(width)},
		{gt[0] + gt[2]*float64(height), gt[3] + gt[5]*float64(height)},
		{gt[0] + gt[1]*float64(width) + gt[2]*float64(height), gt[3] + gt[4]*float64(width) + gt[5]*float64(height)},
	}
	bound := corners[0].Bound()
	for _, c := range corners[1:] {
		bound = bound.Extend(c)
	}
	return bound
}
