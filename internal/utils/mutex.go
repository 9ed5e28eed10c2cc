package utils

import "sync"

var gdalMu sync.Mutex

// ExecuteWithGDAL serializes calls into GDAL, which is not safe for
// concurrent use on a shared dataset.
func ExecuteWithGDAL(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
