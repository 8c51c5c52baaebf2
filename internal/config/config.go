package config

import (
	"fmt"
	"time"

	"github.com/veranemoloko/image-fetcher/internal/domain"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"2"`
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"100"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	MaxImageSize   int64         `envconfig:"MAX_IMAGE_SIZE" default:"52428800"`
	JPEGQuality    int           `envconfig:"JPEG_QUALITY" default:"100"`

	OutcomePolicy     domain.OutcomePolicy `envconfig:"OUTCOME_POLICY" default:"lenient"`
	AllowPrivateHosts bool                 `envconfig:"ALLOW_PRIVATE_HOSTS" default:"false"`
	DefaultSourceURL  string               `envconfig:"DEFAULT_SOURCE_URL" default:"http://digitalcommunications.wp.st-andrews.ac.uk/files/2019/04/JPEG_compression_Example.jpg"`

	DestinationDir string `envconfig:"DESTINATION_DIR" default:"./images"`
	StateFile      string `envconfig:"STATE_FILE" default:"./state.json"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive: %d", c.WorkerPoolSize)
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive: %d", c.QueueSize)
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive: %s", c.FetchTimeout)
	}

	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max image size must be positive: %d", c.MaxImageSize)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100: %d", c.JPEGQuality)
	}

	if !c.OutcomePolicy.Valid() {
		return fmt.Errorf("unknown outcome policy: %q", c.OutcomePolicy)
	}

	if c.DestinationDir == "" {
		return fmt.Errorf("destination directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	return nil
}
