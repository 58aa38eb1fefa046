package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

// Config holds runtime settings for the collect CLI.
type Config struct {
	StorageRoot string

	// ServerURL is the aggregate server base; "/submission" is appended
	// when an instance carries no submission URI of its own.
	ServerURL string
	Username  string
	Password  string

	// AutoCompleteOnSync marks instances found by the scanner as complete.
	AutoCompleteOnSync bool

	// HighResolutionCapture is carried for capture providers. Nothing in
	// this module reads it.
	HighResolutionCapture bool

	DeviceID string

	LogLevel  string
	LogFormat string

	UploadTimeout time.Duration

	S3Region   string
	S3Endpoint string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StorageRoot = defaultStorageRoot()
	c.AutoCompleteOnSync = true
	c.LogLevel = "info"
	c.LogFormat = "console"
	c.UploadTimeout = 30 * time.Second
	c.S3Region = "us-east-1"
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".collect"
	}
	return filepath.Join(home, ".collect")
}

// Load builds a Config from defaults, the JSON file named by the config flag
// and the flags explicitly set on fs. fs must have been prepared with
// RegisterFlags and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path, err := fs.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadJSON(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyFlags(cfg, fs); err != nil {
		return nil, err
	}
	return cfg, nil
}
