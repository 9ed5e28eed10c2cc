// Package catalog holds the static per-sensor band metadata. A sensor is
// added by adding a table entry.
package catalog

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/forest-guardian/slidescan/internal/raster"
)

type Satellite string

const (
	Sentinel2 Satellite = "sn2"
	Landsat8  Satellite = "ls8"
	Landsat5  Satellite = "ls5"
)

type IndexName string

const (
	NDVI IndexName = "ndvi"
	NDWI IndexName = "ndwi"
)

// MaskPolicy selects how the quality band is decoded.
type MaskPolicy int

const (
	// FlagBitsZero: a pixel is clear iff every ClearBits bit is unset.
	FlagBitsZero MaskPolicy = iota
	// ConfidenceCombination: a pixel is bad iff (cloud AND confidence) OR
	// shadow; pixels missing from any band are bad too.
	ConfidenceCombination
)

func (p MaskPolicy) String() string {
	switch p {
	case FlagBitsZero:
		return "flag-bits-zero"
	case ConfidenceCombination:
		return "confidence-combination"
	default:
		return fmt.Sprintf("MaskPolicy(%d)", int(p))
	}
}

// BandPair is the (A, B) of a normalized difference (A-B)/(A+B).
type BandPair struct {
	A, B string
}

type BandSchema struct {
	Satellite  Satellite
	Collection string
	Bands      []string
	// QualityBand holds the bit-encoded quality flags.
	QualityBand string
	Policy      MaskPolicy
	ClearBits   []uint
	CloudBit    uint
	// ConfidenceBit is the high cloud confidence bit.
	ConfidenceBit uint
	ShadowBit     uint
	// Scale multiplies the reflectance bands after masking.
	Scale float64
	// CloudCoverProperty is the scene metadata used for the quality threshold.
	CloudCoverProperty string
	Indices            map[IndexName]BandPair
	TrueColor          [3]string
	DisplayMax         float64
}

// IndexPair returns the bands that make up idx for this sensor.
func (s BandSchema) IndexPair(idx IndexName) (BandPair, error) {
	pair, ok := s.Indices[idx]
	if !ok {
		return BandPair{}, fmt.Errorf("%w: index %q not defined for %s", raster.ErrSchemaMismatch, idx, s.Satellite)
	}
	return pair, nil
}

// RasterBands is the band order of a raw scene: reflectance bands then the quality band.
func (s BandSchema) RasterBands() []string {
	return append(slices.Clone(s.Bands), s.QualityBand)
}

func (s BandSchema) clone() BandSchema {
	s.Bands = slices.Clone(s.Bands)
	s.ClearBits = slices.Clone(s.ClearBits)
	s.Indices = maps.Clone(s.Indices)
	return s
}

var schemas = map[Satellite]BandSchema{
	Sentinel2: {
		Satellite:          Sentinel2,
		Collection:         "COPERNICUS/S2",
		Bands:              []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B8A", "B9", "B10", "B11", "B12"},
		QualityBand:        "QA60",
		Policy:             FlagBitsZero,
		ClearBits:          []uint{10, 11}, // opaque clouds, cirrus
		Scale:              1.0 / 10000,
		CloudCoverProperty: "CLOUDY_PIXEL_PERCENTAGE",
		Indices: map[IndexName]BandPair{
			NDVI: {A: "B8", B: "B4"},
			NDWI: {A: "B8", B: "B12"},
		},
		TrueColor:  [3]string{"B4", "B3", "B2"},
		DisplayMax: 0.3,
	},
	Landsat8: {
		Satellite:          Landsat8,
		Collection:         "LANDSAT/LC08/C01/T1_TOA",
		Bands:              []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B9", "B10", "B11"},
		QualityBand:        "BQA",
		Policy:             FlagBitsZero,
		ClearBits:          []uint{4},
		Scale:              1,
		CloudCoverProperty: "CLOUD_COVER",
		Indices: map[IndexName]BandPair{
			NDVI: {A: "B5", B: "B4"},
			NDWI: {A: "B5", B: "B7"},
		},
		TrueColor:  [3]string{"B4", "B3", "B2"},
		DisplayMax: 0.3,
	},
	Landsat5: {
		Satellite:          Landsat5,
		Collection:         "LANDSAT/LT05/C01/T1_SR",
		Bands:              []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"},
		QualityBand:        "pixel_qa",
		Policy:             ConfidenceCombination,
		CloudBit:           5,
		ConfidenceBit:      7,
		ShadowBit:          3,
		Scale:              1,
		CloudCoverProperty: "CLOUD_COVER",
		Indices: map[IndexName]BandPair{
			NDVI: {A: "B4", B: "B3"},
			NDWI: {A: "B4", B: "B7"},
		},
		TrueColor:  [3]string{"B3", "B2", "B1"},
		DisplayMax: 3000,
	},
}

// Lookup returns a copy of the schema registered for id.
func Lookup(id Satellite) (BandSchema, error) {
	s, ok := schemas[id]
	if !ok {
		return BandSchema{}, fmt.Errorf("%w: unknown satellite %q (known: %v)", raster.ErrSchemaMismatch, id, Satellites())
	}
	return s.clone(), nil
}

func Satellites() []Satellite {
	ids := make([]Satellite, 0, len(schemas))
	for id := range schemas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func Indices() []IndexName {
	return []IndexName{NDVI, NDWI}
}
