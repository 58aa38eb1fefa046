package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexusforms/collect/internal/timex"
)

// jsonConfig is the on-disk shape. Pointer fields tell "absent" apart from a
// zero value so a file only overrides what it names.
type jsonConfig struct {
	StorageRoot           *string         `json:"storage_root"`
	ServerURL             *string         `json:"server_url"`
	Username              *string         `json:"username"`
	Password              *string         `json:"password"`
	AutoCompleteOnSync    *bool           `json:"auto_complete_on_sync"`
	HighResolutionCapture *bool           `json:"high_resolution_capture"`
	DeviceID              *string         `json:"device_id"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
	UploadTimeout         *timex.Duration `json:"upload_timeout"`
	S3Region              *string         `json:"s3_region"`
	S3Endpoint            *string         `json:"s3_endpoint"`
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&cfg.StorageRoot, jc.StorageRoot)
	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.Username, jc.Username)
	setString(&cfg.Password, jc.Password)
	setString(&cfg.DeviceID, jc.DeviceID)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	if jc.AutoCompleteOnSync != nil {
		cfg.AutoCompleteOnSync = *jc.AutoCompleteOnSync
	}
	if jc.HighResolutionCapture != nil {
		cfg.HighResolutionCapture = *jc.HighResolutionCapture
	}
	if jc.UploadTimeout != nil {
		cfg.UploadTimeout = jc.UploadTimeout.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
