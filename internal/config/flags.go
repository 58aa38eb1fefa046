package config

import (
	"github.com/spf13/pflag"
)

const (
	flagConfig        = "config"
	flagStorage       = "storage"
	flagServerURL     = "server-url"
	flagUsername      = "username"
	flagPassword      = "password"
	flagAutoComplete  = "auto-complete"
	flagHighRes       = "high-res"
	flagDeviceID      = "device-id"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
	flagUploadTimeout = "upload-timeout"
	flagS3Region      = "s3-region"
	flagS3Endpoint    = "s3-endpoint"
)

// RegisterFlags declares the configuration flags on fs. Defaults shown in
// help are the built-in ones; the JSON file may still change them.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(flagConfig, "c", "", "path to a JSON config file")
	fs.StringP(flagStorage, "s", d.StorageRoot, "storage root holding forms, instances and the database")
	fs.String(flagServerURL, d.ServerURL, "aggregate server base URL")
	fs.StringP(flagUsername, "u", d.Username, "server username")
	fs.String(flagPassword, d.Password, "server password")
	fs.Bool(flagAutoComplete, d.AutoCompleteOnSync, "mark instances found by scan as complete")
	fs.Bool(flagHighRes, d.HighResolutionCapture, "request high resolution captures")
	fs.String(flagDeviceID, d.DeviceID, "device identifier appended to submission URLs")
	fs.String(flagLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	fs.String(flagLogFormat, d.LogFormat, "log format (console, json)")
	fs.Duration(flagUploadTimeout, d.UploadTimeout, "timeout for one submission request")
	fs.String(flagS3Region, d.S3Region, "region for s3:// destinations")
	fs.String(flagS3Endpoint, d.S3Endpoint, "custom endpoint for s3:// destinations")
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	textFlags := map[string]*string{
		flagStorage:    &cfg.StorageRoot,
		flagServerURL:  &cfg.ServerURL,
		flagUsername:   &cfg.Username,
		flagPassword:   &cfg.Password,
		flagDeviceID:   &cfg.DeviceID,
		flagLogLevel:   &cfg.LogLevel,
		flagLogFormat:  &cfg.LogFormat,
		flagS3Region:   &cfg.S3Region,
		flagS3Endpoint: &cfg.S3Endpoint,
	}
	for name, dst := range textFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	boolFlags := map[string]*bool{
		flagAutoComplete: &cfg.AutoCompleteOnSync,
		flagHighRes:      &cfg.HighResolutionCapture,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed(flagUploadTimeout) {
		v, err := fs.GetDuration(flagUploadTimeout)
		if err != nil {
			return err
		}
		cfg.UploadTimeout = v
	}
	return nil
}
