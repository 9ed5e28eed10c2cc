package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// ErrImageNotFound is returned when the Process API has no data for a day.
var ErrImageNotFound = errors.New("image not found")

const maxPixels = 2500

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	return min(int(pixels), maxPixels)
}

// processBandName maps a catalog band name to its Process API input.
func processBandName(name string) string {
	if len(name) == 2 && name[0] == 'B' {
		return "B0" + name[1:]
	}
	return name
}

// evalscript returns the band values of the schema in DN (reflectance *
// 10000) followed by a QA60-style band built from the CLM cloud mask, so
// the scene decodes like an L1C QA60 product. No-data pixels are NaN.
func evalscript(bands []string) string {
	inputs := make([]string, 0, len(bands)+2)
	outputs := make([]string, 0, len(bands)+1)
	for _, b := range bands {
		name := processBandName(b)
		inputs = append(inputs, `"`+name+`"`)
		outputs = append(outputs, "s."+name+" * 10000")
	}
	inputs = append(inputs, `"CLM"`, `"dataMask"`)
	outputs = append(outputs, "(s.CLM == 1 ? 1024 : 0)")

	return fmt.Sprintf(`//VERSION=3
function setup() {
  return {
    input: [%s],
    output: { id: "default", bands: %d, sampleType: SampleType.FLOAT32 },
    mosaicking: "SIMPLE"
  };
}

function evaluatePixel(s) {
  if (s.dataMask === 0) {
    return new Array(%d).fill(NaN);
  }
  return [%s];
}
`, strings.Join(inputs, ", "), len(outputs), len(outputs), strings.Join(outputs, ", "))
}

// requestPayload builds a Process API request for one day over bound.
func requestPayload(bound orb.Bound, day time.Time, bands []string, maxCloudCover, resolution float64) map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox": []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
				},
			},
			"data": []map[string]interface{}{
				{
					"type": "sentinel-2-l1c",
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": day.Format(time.RFC3339),
							"to":   day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
						},
						"maxCloudCoverage": maxCloudCover,
						"mosaickingOrder":  "leastCC",
					},
				},
			},
		},
		"output": map[string]interface{}{
			"width":  calculatePixels(bound.Max[0]-bound.Min[0], resolution),
			"height": calculatePixels(bound.Max[1]-bound.Min[1], resolution),
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": evalscript(bands),
	}
}

// requestImage posts payload and returns the GeoTIFF body. Rate limits and
// server errors are retried; other failures are returned at once.
func (r *Repository) requestImage(ctx context.Context, payload map[string]interface{}) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryWait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ProcessURL, bytes.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "image/tiff")

		response, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			r.logger.Warn("process request failed", "attempt", attempt, "error", err)
			continue
		}
		body, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		switch {
		case response.StatusCode == http.StatusOK:
			return body, nil
		case response.StatusCode == http.StatusNotFound:
			return nil, ErrImageNotFound
		case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("unauthorized access, check your client ID and secret: %s", body)
		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
			lastErr = fmt.Errorf("process API returned %d: %s", response.StatusCode, body)
			r.logger.Warn("process request failed", "attempt", attempt, "status", response.StatusCode)
		default:
			return nil, fmt.Errorf("process API returned %d: %s", response.StatusCode, body)
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", r.retries, lastErr)
}
