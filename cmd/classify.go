package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/pipeline"
	"github.com/forest-guardian/slidescan/internal/samples"
	"github.com/forest-guardian/slidescan/output"
	"github.com/spf13/cobra"
)

var classifyFlags struct {
	start, end             string
	beforeStart, beforeEnd string
	polygons               string
	classProperty          string
	features               string
	trees                  int
	seed                   uint64
	scale                  float64
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Train a random forest on labeled polygons and classify the region",
	Example: `  slidescan classify --region 132.59,34.39,132.66,34.43 \
    --start 2018-07-20 --end 2018-08-30 --before-start 2017-07-01 --before-end 2017-08-30 \
    --polygons data/training/hiroshima.geojson`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := runClassify(cmd)
		return app.notify(cmd, summary, err)
	},
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyFlags.start, "start", "", "first day of the period (YYYY-MM-DD)")
	f.StringVar(&classifyFlags.end, "end", "", "day after the period (YYYY-MM-DD)")
	f.StringVar(&classifyFlags.beforeStart, "before-start", "", "first day of an earlier period; adds change features")
	f.StringVar(&classifyFlags.beforeEnd, "before-end", "", "day after the earlier period")
	f.StringVar(&classifyFlags.polygons, "polygons", "", "GeoJSON FeatureCollection of labeled training polygons")
	f.StringVar(&classifyFlags.classProperty, "class", pipeline.DefaultClassProperty, "polygon property holding the class label")
	f.StringVar(&classifyFlags.features, "features", "", "comma-separated feature bands (default every band)")
	f.IntVar(&classifyFlags.trees, "trees", 10, "number of trees")
	f.Uint64Var(&classifyFlags.seed, "seed", 0, "random seed")
	f.Float64Var(&classifyFlags.scale, "scale", 10, "sampling grid spacing in metres")
	for _, name := range []string{"start", "end", "polygons"} {
		classifyCmd.MarkFlagRequired(name)
	}
}

func runClassify(cmd *cobra.Command) (string, error) {
	region, err := app.bound()
	if err != nil {
		return "", err
	}
	dates, err := imagery.ParseDateRange(classifyFlags.start, classifyFlags.end)
	if err != nil {
		return "", err
	}
	polygons, err := samples.LoadPolygons(app.cfg.Path(classifyFlags.polygons))
	if err != nil {
		return "", err
	}

	req := pipeline.ClassificationRequest{
		Region:         region,
		Range:          dates,
		Satellite:      catalog.Satellite(app.satellite),
		CloudThreshold: app.cloud,
		Polygons:       polygons,
		ClassProperty:  classifyFlags.classProperty,
		TreeCount:      classifyFlags.trees,
		Seed:           classifyFlags.seed,
		Scale:          classifyFlags.scale,
	}
	if classifyFlags.features != "" {
		req.FeatureBands = strings.Split(classifyFlags.features, ",")
	}
	if classifyFlags.beforeStart != "" || classifyFlags.beforeEnd != "" {
		before, err := imagery.ParseDateRange(classifyFlags.beforeStart, classifyFlags.beforeEnd)
		if err != nil {
			return "", fmt.Errorf("before period: %w", err)
		}
		req.Before = &before
	}

	m, err := app.runner().ComputeClassification(cmd.Context(), req)
	if err != nil {
		return "", err
	}

	pngPath, csvPath, trainingPath := app.output("classification.png"), app.output("classes.csv"), app.output("training.png")
	if err := output.WriteClassificationPNG(m, pngPath); err != nil {
		return "", err
	}
	if err := output.WriteClassSummaryCSV(m, csvPath); err != nil {
		return "", err
	}
	training, err := samples.Rasterize(polygons, m, req.ClassProperty)
	if err != nil {
		return "", err
	}
	if err := output.WriteLabelPNG(training, samples.ClassBand, trainingPath); err != nil {
		return "", err
	}

	rows, err := output.ClassSummary(m)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%d %-10s %8d px %6.2f%%", r.Class, r.Name, r.Pixels, 100*r.Share))
	}
	color.Green("Classified %d pixels", m.Len())
	fmt.Println(strings.Join(lines, "\n"))
	fmt.Printf("Image:    %s\nTraining: %s\nSummary:  %s\n", pngPath, trainingPath, csvPath)
	return fmt.Sprintf("%s\nResultant image located at: %s", strings.Join(lines, "\n"), pngPath), nil
}
