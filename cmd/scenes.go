package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/spf13/cobra"
)

var scenesFlags struct {
	start, end string
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List the indexed scenes matching a query (local repository only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		local, ok := app.repo.(*imagery.LocalRepository)
		if !ok {
			return fmt.Errorf("scenes needs REPOSITORY=local")
		}
		region, err := app.bound()
		if err != nil {
			return err
		}
		dates, err := imagery.ParseDateRange(scenesFlags.start, scenesFlags.end)
		if err != nil {
			return err
		}

		records := local.Scenes(imagery.Query{
			Satellite:     catalog.Satellite(app.satellite),
			Range:         dates,
			Region:        region,
			MaxCloudCover: app.cloud,
		})
		header := color.New(color.FgCyan, color.Bold)
		header.Printf("%-10s %-6s %7s  %s\n", "DATE", "SAT", "CLOUD%", "PATH")
		for _, r := range records {
			fmt.Printf("%-10s %-6s %7.1f  %s\n", r.Date, r.Satellite, r.CloudCover, r.Path)
		}
		color.Green("%d scene(s)", len(records))
		return nil
	},
}

func init() {
	scenesCmd.Flags().StringVar(&scenesFlags.start, "start", "", "first day of the period (YYYY-MM-DD)")
	scenesCmd.Flags().StringVar(&scenesFlags.end, "end", "", "day after the period (YYYY-MM-DD)")
	scenesCmd.MarkFlagRequired("start")
	scenesCmd.MarkFlagRequired("end")
}
