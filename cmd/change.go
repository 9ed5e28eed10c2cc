package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/pipeline"
	"github.com/forest-guardian/slidescan/output"
	"github.com/spf13/cobra"
)

var changeFlags struct {
	beforeStart, beforeEnd string
	afterStart, afterEnd   string
	beforeSatellite        string
	index                  string
	threshold              float64
}

var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Flag pixels whose index dropped between two periods",
	Example: `  slidescan change --region 132.59,34.39,132.66,34.43 \
    --before-start 2017-07-01 --before-end 2017-08-30 --before-satellite ls8 \
    --after-start 2018-07-20 --after-end 2018-08-30`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := runChange(cmd)
		return app.notify(cmd, summary, err)
	},
}

func init() {
	f := changeCmd.Flags()
	f.StringVar(&changeFlags.beforeStart, "before-start", "", "first day of the before period (YYYY-MM-DD)")
	f.StringVar(&changeFlags.beforeEnd, "before-end", "", "day after the before period (YYYY-MM-DD)")
	f.StringVar(&changeFlags.afterStart, "after-start", "", "first day of the after period (YYYY-MM-DD)")
	f.StringVar(&changeFlags.afterEnd, "after-end", "", "day after the after period (YYYY-MM-DD)")
	f.StringVar(&changeFlags.beforeSatellite, "before-satellite", "", "satellite of the before period (default --satellite)")
	f.StringVar(&changeFlags.index, "index", string(catalog.NDVI), "index to difference (ndvi, ndwi)")
	f.Float64Var(&changeFlags.threshold, "threshold", -0.3, "flag pixels whose change is below this value")
	for _, name := range []string{"before-start", "before-end", "after-start", "after-end"} {
		changeCmd.MarkFlagRequired(name)
	}
}

func runChange(cmd *cobra.Command) (string, error) {
	region, err := app.bound()
	if err != nil {
		return "", err
	}
	before, err := imagery.ParseDateRange(changeFlags.beforeStart, changeFlags.beforeEnd)
	if err != nil {
		return "", fmt.Errorf("before period: %w", err)
	}
	after, err := imagery.ParseDateRange(changeFlags.afterStart, changeFlags.afterEnd)
	if err != nil {
		return "", fmt.Errorf("after period: %w", err)
	}

	m, err := app.runner().ComputeChangeMap(cmd.Context(), pipeline.ChangeRequest{
		Region:          region,
		Before:          before,
		After:           after,
		Satellite:       catalog.Satellite(app.satellite),
		BeforeSatellite: catalog.Satellite(changeFlags.beforeSatellite),
		CloudThreshold:  app.cloud,
		Index:           catalog.IndexName(changeFlags.index),
		ChangeThreshold: changeFlags.threshold,
	})
	if err != nil {
		return "", err
	}

	summary, err := change.Summarize(m)
	if err != nil {
		return "", err
	}
	pngPath, geojsonPath, csvPath := app.output("change.png"), app.output("change.geojson"), app.output("change.csv")
	if err := output.WriteChangePNG(m, pngPath); err != nil {
		return "", err
	}
	if err := output.WriteChangeGeoJSON(m, geojsonPath); err != nil {
		return "", err
	}
	if err := output.WriteChangeSummaryCSV(summary, csvPath); err != nil {
		return "", err
	}

	color.Green("Flagged %d of %d valid pixels (%d total)", summary.Flagged, summary.Valid, summary.Pixels)
	fmt.Printf("Image:   %s\nGeoJSON: %s\nSummary: %s\n", pngPath, geojsonPath, csvPath)
	return fmt.Sprintf("Flagged %d of %d valid pixels.\nGeoJSON located at: %s", summary.Flagged, summary.Valid, geojsonPath), nil
}
