package app

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/gpstrack/internal/batch"
	"github.com/roman-kulish/gpstrack/internal/render"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
	"github.com/roman-kulish/gpstrack/internal/track"
)

const (
	// EnvPrefix prefixes every environment override, e.g. GPSTRACK_WORKERS
	EnvPrefix = "GPSTRACK_"

	DefaultOutputDir = "./output_csv"
	DefaultLogLevel  = "info"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Config represents the main application configuration. Values are layered:
// defaults, then the YAML file, then environment variables, then flags.
type Config struct {
	Settings Settings      `yaml:"settings"`
	Input    string        `yaml:"input" env:"INPUT"`
	Output   string        `yaml:"output" env:"OUTPUT"`
	File     string        `yaml:"-"` // Single video mode, flag only
	Filter   FilterConfig  `yaml:"filter"`
	Extract  ExtractConfig `yaml:"extract"`
	Batch    BatchConfig   `yaml:"batch"`
	Storage  StorageConfig `yaml:"storage"`
	Media    MediaConfig   `yaml:"media"`
	Render   RenderConfig  `yaml:"render"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFile  string `yaml:"logFile" env:"LOG_FILE"` // Append-only log file, mirrored to stdout
}

// FilterConfig represents distance filter settings
type FilterConfig struct {
	MinDistance float64 `yaml:"minDistance" env:"MIN_DISTANCE"`
}

// ExtractConfig represents telemetry extraction settings
type ExtractConfig struct {
	Policy            telemetry.Policy            `yaml:"policy" env:"POLICY"`
	TimestampFallback telemetry.TimestampFallback `yaml:"timestampFallback" env:"TIMESTAMP_FALLBACK"`
	Stream            string                      `yaml:"stream" env:"STREAM"`
}

// BatchConfig represents batch controller settings
type BatchConfig struct {
	Workers    int          `yaml:"workers" env:"WORKERS"`
	Extensions []string     `yaml:"extensions" env:"EXTENSIONS" envSeparator:","`
	Timeout    TimeDuration `yaml:"timeout" env:"TIMEOUT"` // Per video, zero means no limit
}

// StorageConfig represents run ledger settings
type StorageConfig struct {
	Database string `yaml:"database" env:"DB"` // Empty disables the ledger
}

// MediaConfig represents external tool settings
type MediaConfig struct {
	FFmpeg  string `yaml:"ffmpeg" env:"FFMPEG"`
	FFprobe string `yaml:"ffprobe" env:"FFPROBE"`
	TempDir string `yaml:"tempDir" env:"TEMP_DIR"`
}

// RenderConfig represents track preview settings
type RenderConfig struct {
	Enabled bool               `yaml:"enabled" env:"RENDER"`
	Format  render.ImageFormat `yaml:"format" env:"RENDER_FORMAT"`
	Theme   render.ColorTheme  `yaml:"theme" env:"RENDER_THEME"`
	Width   int                `yaml:"width" env:"RENDER_WIDTH"`
	Height  int                `yaml:"height" env:"RENDER_HEIGHT"`
}

// TimeDuration is a time.Duration written as a Go duration string, e.g. "90s"
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d *TimeDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the value as a time.Duration
func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

// NewConfig returns a configuration populated with defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: DefaultLogLevel},
		Output:   DefaultOutputDir,
		Filter:   FilterConfig{MinDistance: track.DefaultMinDistance},
		Extract: ExtractConfig{
			Policy:            telemetry.PolicyConcatenate,
			TimestampFallback: telemetry.FallbackNone,
			Stream:            telemetry.StreamGPS5,
		},
		Batch: BatchConfig{
			Workers:    1,
			Extensions: batch.DefaultExtensions,
		},
		Render: RenderConfig{
			Format: render.ImagePNG,
			Theme:  render.ClassicTheme,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string, environ map[string]string) (*Config, error) {
	c := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration file: %w", err)
		}
		if err = yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing configuration file: %w", err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return c, nil
}

// NewConfigFromCLI builds the configuration from command line arguments, the
// optional configuration file they name, and the process environment.
func NewConfigFromCLI(name string, args []string) (*Config, error) {
	return newConfigFromArgs(name, args, nil)
}

func newConfigFromArgs(name string, args []string, environ map[string]string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var (
		configPath, input, output, file, database, policy, logLevel string
		minDistance                                                 float64
		workers                                                     int
		renderPreview                                               bool
	)
	fs.StringVar(&configPath, "c", "", "Path to the YAML configuration file")
	fs.StringVar(&input, "i", "", "Directory containing the videos (prompted when omitted)")
	fs.StringVar(&output, "o", DefaultOutputDir, "Directory for the CSV tracks")
	fs.StringVar(&file, "f", "", "Process a single video instead of a directory")
	fs.Float64Var(&minDistance, "min-distance", track.DefaultMinDistance, "Minimum distance between retained points in meters")
	fs.IntVar(&workers, "workers", 1, "Number of videos processed concurrently")
	fs.StringVar(&database, "db", "", "Path to the run ledger database")
	fs.BoolVar(&renderPreview, "render", false, "Render a track preview image next to every CSV")
	fs.StringVar(&policy, "policy", string(telemetry.PolicyConcatenate), "Multi-device policy. [concatenate, time-merge]")
	fs.StringVar(&logLevel, "log-level", DefaultLogLevel, "Log level. [debug, info, warn, error]")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c, err := LoadConfig(configPath, environ)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			c.Input = input
		case "o":
			c.Output = output
		case "f":
			c.File = file
		case "min-distance":
			c.Filter.MinDistance = minDistance
		case "workers":
			c.Batch.Workers = workers
		case "db":
			c.Storage.Database = database
		case "render":
			c.Render.Enabled = renderPreview
		case "policy":
			c.Extract.Policy = telemetry.Policy(strings.ToLower(policy))
		case "log-level":
			c.Settings.LogLevel = logLevel
		}
	})

	if err = c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	var errs []error

	if _, ok := validLogLevels[strings.ToLower(c.Settings.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Settings.LogLevel))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Input != "" && c.File != "" {
		errs = append(errs, errors.New("input directory and single file are mutually exclusive"))
	}
	if c.Filter.MinDistance <= 0 || math.IsNaN(c.Filter.MinDistance) || math.IsInf(c.Filter.MinDistance, 0) {
		errs = append(errs, fmt.Errorf("invalid minimum distance: %v", c.Filter.MinDistance))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1: %d given", c.Batch.Workers))
	}
	if c.Batch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %s", c.Batch.Timeout.Duration()))
	}
	if c.Extract.Stream == "" {
		errs = append(errs, errors.New("telemetry stream is required"))
	}
	if err := c.Extract.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Extract.TimestampFallback.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Render.Enabled {
		if !render.ValidFormat(c.Render.Format) {
			errs = append(errs, fmt.Errorf("invalid image format: %s", c.Render.Format))
		}
		if !render.ValidTheme(c.Render.Theme) {
			errs = append(errs, fmt.Errorf("invalid color theme: %s", c.Render.Theme))
		}
	}

	return errors.Join(errs...)
}

// Level returns the configured log level
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
