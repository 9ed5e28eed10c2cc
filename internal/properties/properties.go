// Package properties loads the run configuration from the environment and
// an optional .env file.
package properties

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	RepositoryLocal      = "local"
	RepositoryCopernicus = "copernicus"
)

type Config struct {
	RootPath   string        `env:"ROOT_PATH" envDefault:"."`
	SceneIndex string        `env:"SCENE_INDEX" envDefault:"data/scenes.csv"`
	Repository string        `env:"REPOSITORY" envDefault:"local"`
	Timeout    time.Duration `env:"REPOSITORY_TIMEOUT" envDefault:"5m"`
	Workers    int           `env:"WORKERS" envDefault:"0"`

	Copernicus CopernicusConfig `envPrefix:"COPERNICUS_"`
	Discord    DiscordConfig    `envPrefix:"DISCORD_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

type CopernicusConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	ProcessURL   string `env:"PROCESS_URL" envDefault:"https://sh.dataspace.copernicus.eu/api/v1/process"`
}

// DiscordConfig holds the webhook URLs. Empty URLs disable notifications.
type DiscordConfig struct {
	ErrorURL   string `env:"ERROR_NOTIFICATION_URL"`
	SuccessURL string `env:"SUCCESS_NOTIFICATION_URL"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load reads .env from the working directory when present, then parses
// the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse reads the configuration with the given env options, so callers can
// supply an explicit environment.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Repository {
	case RepositoryLocal:
		if c.SceneIndex == "" {
			return fmt.Errorf("scene index is required for the local repository")
		}
	case RepositoryCopernicus:
		if c.Copernicus.ClientID == "" || c.Copernicus.ClientSecret == "" {
			return fmt.Errorf("copernicus client id and secret are required")
		}
		if c.Copernicus.TokenURL == "" || c.Copernicus.ProcessURL == "" {
			return fmt.Errorf("copernicus token and process URLs are required")
		}
	default:
		return fmt.Errorf("repository must be %q or %q, got %q", RepositoryLocal, RepositoryCopernicus, c.Repository)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("repository timeout must be positive, got %s", c.Timeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got %q", c.Logging.Format)
	}
	return nil
}

// Path resolves p against RootPath unless it is already absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootPath, p)
}

// DataDir is where downloads and caches live.
func (c *Config) DataDir(sub ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, sub...)...)
}

type Color struct {
	R, G, B uint8
}

// ColorMap is the classification palette, keyed by class label.
var ColorMap = map[int]Color{
	0: {0x00, 0x00, 0xFF}, // water
	1: {0x96, 0x4B, 0x00}, // landslide
	2: {0xCC, 0xFF, 0x66}, // urban
	3: {0x00, 0xFF, 0x00}, // crop
	4: {0x00, 0xFF, 0xFF}, // forest
}

var ClassNames = map[int]string{
	0: "water",
	1: "landslide",
	2: "urban",
	3: "crop",
	4: "forest",
}

// Unknown colours labels missing from ColorMap.
var Unknown = Color{255, 0, 0}
