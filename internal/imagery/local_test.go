package imagery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneIndex = `satellite,date,cloud_cover,path,min_lon,min_lat,max_lon,max_lat
sn2,2018-07-25,12.5,scenes/a.tif,132.6,34.2,132.8,34.4
sn2,2018-07-22,60,scenes/b.tif,132.6,34.2,132.8,34.4
sn2,2018-08-02,3,scenes/c.tif,140.0,35.0,140.2,35.2
ls8,2018-07-26,1,scenes/d.tif,132.6,34.2,132.8,34.4
sn2,2018-07-21,0,/abs/e.tif,132.6,34.2,132.8,34.4
`

var hiroshima = orb.Bound{Min: orb.Point{132.647, 34.277}, Max: orb.Point{132.763, 34.33}}

type readCall struct {
	path  string
	bands []string
}

func openIndex(t *testing.T, calls *[]readCall) *LocalRepository {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "scenes.csv")
	require.NoError(t, os.WriteFile(indexPath, []byte(sceneIndex), 0644))

	reader := func(path string, bandNames []string, acquired time.Time) (*raster.Raster, error) {
		*calls = append(*calls, readCall{path: path, bands: bandNames})
		bands := make([]raster.Band, len(bandNames))
		for i, name := range bandNames {
			bands[i] = raster.NewBand(name, []float64{1}, nil)
		}
		return raster.New(1, 1, bands, raster.WithTime(acquired))
	}
	repo, err := OpenLocal(indexPath, WithSceneReader(reader))
	require.NoError(t, err)
	return repo
}

func TestLocalRepositoryFilters(t *testing.T) {
	var calls []readCall
	repo := openIndex(t, &calls)

	q := Query{
		Satellite:     catalog.Sentinel2,
		Range:         DateRange{Start: time.Date(2018, 7, 20, 0, 0, 0, 0, time.UTC), End: time.Date(2018, 8, 30, 0, 0, 0, 0, time.UTC)},
		Region:        hiroshima,
		MaxCloudCover: 50,
	}
	c, err := repo.Query(context.Background(), q)
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	assert.Equal(t, time.Date(2018, 7, 21, 0, 0, 0, 0, time.UTC), c.At(0).Time())
	assert.Equal(t, time.Date(2018, 7, 25, 0, 0, 0, 0, time.UTC), c.At(1).Time())

	require.Len(t, calls, 2)
	assert.True(t, strings.HasSuffix(calls[0].path, filepath.Join("scenes", "a.tif")), calls[0].path)
	assert.Equal(t, "/abs/e.tif", calls[1].path)
	assert.Equal(t, "QA60", calls[0].bands[len(calls[0].bands)-1])
}

func TestLocalRepositoryEmptyResult(t *testing.T) {
	var calls []readCall
	repo := openIndex(t, &calls)

	q := Query{
		Satellite:     catalog.Landsat5,
		Range:         DateRange{Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)},
		Region:        hiroshima,
		MaxCloudCover: 100,
	}
	c, err := repo.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, calls)
}

func TestLocalRepositoryHonoursContext(t *testing.T) {
	var calls []readCall
	repo := openIndex(t, &calls)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Query(ctx, Query{
		Satellite:     catalog.Sentinel2,
		Range:         DateRange{Start: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		Region:        hiroshima,
		MaxCloudCover: 100,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalRepositoryRejectsBadDate(t *testing.T) {
	_, err := NewLocalRepository([]*SceneRecord{{Satellite: "sn2", Date: "20/07/18"}})
	assert.Error(t, err)
}

func TestParseDateRange(t *testing.T) {
	d, err := ParseDateRange("2017-04-01", "2017-06-27")
	require.NoError(t, err)
	assert.True(t, d.Contains(time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, d.Contains(time.Date(2017, 6, 27, 0, 0, 0, 0, time.UTC)))

	_, err = ParseDateRange("2017-06-27", "2017-04-01")
	assert.Error(t, err)
}
