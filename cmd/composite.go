package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/composite"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/output"
	"github.com/spf13/cobra"
)

var compositeFlags struct {
	start, end string
}

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Render a true-colour preview of the cloud-masked median composite",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := runComposite(cmd)
		return app.notify(cmd, summary, err)
	},
}

func init() {
	compositeCmd.Flags().StringVar(&compositeFlags.start, "start", "", "first day of the period (YYYY-MM-DD)")
	compositeCmd.Flags().StringVar(&compositeFlags.end, "end", "", "day after the period (YYYY-MM-DD)")
	compositeCmd.MarkFlagRequired("start")
	compositeCmd.MarkFlagRequired("end")
}

func runComposite(cmd *cobra.Command) (string, error) {
	region, err := app.bound()
	if err != nil {
		return "", err
	}
	dates, err := imagery.ParseDateRange(compositeFlags.start, compositeFlags.end)
	if err != nil {
		return "", err
	}
	schema, err := catalog.Lookup(catalog.Satellite(app.satellite))
	if err != nil {
		return "", err
	}

	c := composite.New(app.repo, composite.WithTimeout(app.cfg.Timeout), composite.WithLogger(app.logger))
	img, err := c.Composite(cmd.Context(), imagery.Query{
		Satellite:     schema.Satellite,
		Range:         dates,
		Region:        region,
		MaxCloudCover: app.cloud,
	})
	if err != nil {
		return "", err
	}

	path := app.output(string(schema.Satellite) + "_truecolor.png")
	if err := output.WriteTrueColorPNG(img, schema, path); err != nil {
		return "", err
	}
	color.Green("Composite of %s over %s written", schema.Satellite, dates)
	fmt.Println(path)
	return "Composite located at: " + path, nil
}
