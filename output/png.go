package output

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/forest"
	"github.com/forest-guardian/slidescan/internal/properties"
	"github.com/forest-guardian/slidescan/internal/raster"
)

var (
	flaggedColor = properties.ColorMap[1]
	legendRow    = 20
)

type legendEntry struct {
	label string
	color properties.Color
}

// WriteChangePNG renders flagged pixels in the landslide colour over a
// grey ramp of the delta. Masked pixels are transparent.
func WriteChangePNG(m *raster.Raster, path string) error {
	delta, err := m.Band(change.DeltaBand)
	if err != nil {
		return err
	}
	flags, err := m.Band(change.FlagBand)
	if err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, m.Width(), m.Height()))
	for i := range m.Len() {
		x, y := i%m.Width(), i/m.Width()
		d, ok := delta.At(i)
		if !ok {
			continue
		}
		if f, _ := flags.At(i); f == 1 {
			img.Set(x, y, rgba(flaggedColor))
			continue
		}
		// delta spans [-2, 2]; 0 maps to mid grey
		g := uint8(math.Round(math.Max(0, math.Min(1, (d+2)/4)) * 255))
		img.Set(x, y, color.RGBA{g, g, g, 255})
	}

	return save(img, path, []legendEntry{
		{label: "flagged", color: flaggedColor},
	})
}

// WriteClassificationPNG colours each label with properties.ColorMap.
func WriteClassificationPNG(m *raster.Raster, path string) error {
	return WriteLabelPNG(m, forest.ClassificationBand, path)
}

// WriteLabelPNG colours an integer-labelled band, such as rasterized
// training polygons, with the classification palette.
func WriteLabelPNG(m *raster.Raster, band, path string) error {
	b, err := m.Band(band)
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, m.Width(), m.Height()))
	var seen []int
	for i := range m.Len() {
		v, ok := b.At(i)
		if !ok {
			continue
		}
		label := int(v)
		if !slices.Contains(seen, label) {
			seen = append(seen, label)
		}
		img.Set(i%m.Width(), i/m.Width(), rgba(classColor(label)))
	}

	slices.Sort(seen)
	legend := make([]legendEntry, 0, len(seen))
	for _, label := range seen {
		name, ok := properties.ClassNames[label]
		if !ok {
			name = fmt.Sprintf("class %d", label)
		}
		legend = append(legend, legendEntry{label: name, color: classColor(label)})
	}
	return save(img, path, legend)
}

// WriteTrueColorPNG stretches the schema's true-colour bands of a masked
// composite from zero to the schema's display maximum.
func WriteTrueColorPNG(composite *raster.Raster, s catalog.BandSchema, path string) error {
	bands, err := composite.Bands(s.TrueColor[:]...)
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, composite.Width(), composite.Height()))
	for i := range composite.Len() {
		var px [3]uint8
		ok := true
		for c, b := range bands {
			var v float64
			if v, ok = b.At(i); !ok {
				break
			}
			px[c] = uint8(math.Round(math.Max(0, math.Min(1, v/s.DisplayMax)) * 255))
		}
		if ok {
			img.Set(i%composite.Width(), i/composite.Width(), color.RGBA{px[0], px[1], px[2], 255})
		}
	}
	return save(img, path, nil)
}

func classColor(label int) properties.Color {
	if c, ok := properties.ColorMap[label]; ok {
		return c
	}
	return properties.Unknown
}

func rgba(c properties.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// save draws img with a legend strip below it and writes a PNG.
func save(img image.Image, path string, legend []legendEntry) error {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	legendHeight := 0
	if len(legend) > 0 {
		legendHeight = 10 + legendRow*len(legend)
		width = max(width, 120)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height+legendHeight, 1)))
	draw.Draw(canvas, img.Bounds(), img, image.Point{}, draw.Src)
	dc := gg.NewContextForRGBA(canvas)

	for n, entry := range legend {
		y := float64(height + 5 + n*legendRow)
		dc.SetRGB(float64(entry.color.R)/255, float64(entry.color.G)/255, float64(entry.color.B)/255)
		dc.DrawRectangle(5, y, 15, 15)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(5, y, 15, 15)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.DrawStringAnchored(entry.label, 25, y+7, 0, 0.5)
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
