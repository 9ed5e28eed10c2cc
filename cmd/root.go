package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/forest-guardian/slidescan/internal/cache"
	"github.com/forest-guardian/slidescan/internal/catalog"
	"github.com/forest-guardian/slidescan/internal/forest"
	"github.com/forest-guardian/slidescan/internal/imagery"
	"github.com/forest-guardian/slidescan/internal/notification"
	"github.com/forest-guardian/slidescan/internal/pipeline"
	"github.com/forest-guardian/slidescan/internal/properties"
	"github.com/forest-guardian/slidescan/internal/sentinel"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

// cli is the state shared by every subcommand once the config is loaded.
type cli struct {
	cfg    *properties.Config
	logger *slog.Logger
	repo   imagery.Repository

	region    string
	satellite string
	cloud     float64
	outDir    string
	name      string
	progress  bool
	noBanner  bool
}

var app = &cli{}

var rootCmd = &cobra.Command{
	Use:   "slidescan",
	Short: "Landslide detection and land-cover classification from satellite composites",
	Long: `slidescan builds cloud-masked median composites of Sentinel-2, Landsat-8 and
Landsat-5 imagery, flags vegetation loss between two periods and trains a
random forest on labeled polygons to classify land cover.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !app.noBanner {
			printBanner()
		}
		return app.load()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.region, "region", "", "region of interest as minLon,minLat,maxLon,maxLat")
	flags.StringVar(&app.satellite, "satellite", string(catalog.Sentinel2), "satellite id (sn2, ls8, ls5)")
	flags.Float64Var(&app.cloud, "cloud", 50, "keep scenes whose cloud cover is below this percentage")
	flags.StringVar(&app.outDir, "out", "", "output directory (default ROOT_PATH/data/result)")
	flags.StringVar(&app.name, "name", "slidescan", "prefix of the output files")
	flags.BoolVar(&app.progress, "progress", true, "show progress bars")
	flags.BoolVar(&app.noBanner, "no-banner", false, "do not print the banner")

	rootCmd.AddCommand(changeCmd, classifyCmd, compositeCmd, scenesCmd)
}

func (c *cli) load() error {
	cfg, err := properties.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(c.logger)

	switch cfg.Repository {
	case properties.RepositoryCopernicus:
		c.repo = sentinel.New(sentinel.Config{
			ClientID:     cfg.Copernicus.ClientID,
			ClientSecret: cfg.Copernicus.ClientSecret,
			TokenURL:     cfg.Copernicus.TokenURL,
			ProcessURL:   cfg.Copernicus.ProcessURL,
			CacheDir:     cfg.DataDir("images"),
		}, sentinel.WithLogger(c.logger), sentinel.WithProgress(c.progress))
	default:
		local, err := imagery.OpenLocal(cfg.Path(cfg.SceneIndex), imagery.WithLogger(c.logger))
		if err != nil {
			return err
		}
		c.repo = local
	}

	if c.outDir == "" {
		c.outDir = cfg.DataDir("result")
	}
	return os.MkdirAll(c.outDir, 0755)
}

func (c *cli) runner() *pipeline.Runner {
	workers := c.cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return pipeline.New(c.repo,
		pipeline.WithLogger(c.logger),
		pipeline.WithTimeout(c.cfg.Timeout),
		pipeline.WithModelCache(cache.NewFileCache[*forest.Model](c.cfg.DataDir("models"))),
		pipeline.WithWorkers(workers),
		pipeline.WithProgress(c.progress),
	)
}

func (c *cli) notifier() *notification.Discord {
	if c.cfg == nil {
		return &notification.Discord{}
	}
	return &notification.Discord{ErrorURL: c.cfg.Discord.ErrorURL, SuccessURL: c.cfg.Discord.SuccessURL}
}

// output returns the path of an output file named after the run.
func (c *cli) output(suffix string) string {
	return filepath.Join(c.outDir, c.name+"_"+suffix)
}

// notify reports the outcome of a command and passes err through.
func (c *cli) notify(cmd *cobra.Command, summary string, err error) error {
	n := c.notifier()
	var notifyErr error
	if err != nil {
		notifyErr = n.Error(cmd.Context(), cmd.Name(), err)
	} else {
		notifyErr = n.Success(cmd.Context(), cmd.Name(), summary)
	}
	if notifyErr != nil {
		c.logger.Warn("failed to send notification", "error", notifyErr)
	}
	return err
}

func (c *cli) bound() (orb.Bound, error) {
	return parseBound(c.region)
}

func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("region must be minLon,minLat,maxLon,maxLat, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid region coordinate %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("region %q has no area", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
