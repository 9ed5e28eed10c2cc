package imagery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/forest-guardian/slidescan/internal/utils"
)

var registerDrivers sync.Once

// ReadGeoTIFF reads every band of the GeoTIFF at path, naming them in
// order. Samples equal to a band's nodata value are masked.
func ReadGeoTIFF(path string, bandNames []string, acquired time.Time) (*raster.Raster, error) {
	var (
		r   *raster.Raster
		err error
	)
	utils.ExecuteWithGDAL(func() {
		r, err = readGeoTIFF(path, bandNames, acquired)
	})
	return r, err
}

func readGeoTIFF(path string, bandNames []string, acquired time.Time) (*raster.Raster, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return errors.New(msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	if structure.NBands != len(bandNames) {
		return nil, fmt.Errorf("%w: %s has %d bands, expected %d (%v)", raster.ErrSchemaMismatch, path, structure.NBands, len(bandNames), bandNames)
	}

	geoTransform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get GeoTransform of %s: %w", path, err)
	}

	width, height := structure.SizeX, structure.SizeY
	bands := make([]raster.Band, 0, len(bandNames))
	for i, band := range ds.Bands() {
		data := make([]float64, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read band %s of %s: %w", bandNames[i], path, err)
		}
		var valid []bool
		if nodata, ok := band.NoData(); ok {
			valid = make([]bool, len(data))
			for j, v := range data {
				valid[j] = v != nodata
			}
		}
		bands = append(bands, raster.NewBand(bandNames[i], data, valid))
	}

	return raster.New(width, height, bands,
		raster.WithTime(acquired),
		raster.WithGeoTransform(raster.GeoTransform(geoTransform)))
}
