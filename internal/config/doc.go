// Package config loads runtime configuration for the collect CLI.
//
// # Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or --config.
//  3. Command-line flags. Only flags set explicitly override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "30s" or integer
// nanoseconds:
//
//	{
//	  "storage_root": "/var/lib/collect",
//	  "server_url": "https://central.example.org/v1/key/abc/projects/1",
//	  "username": "enumerator",
//	  "auto_complete_on_sync": true,
//	  "device_id": "collect:4f1c",
//	  "log_level": "info",
//	  "log_format": "json",
//	  "upload_timeout": "30s"
//	}
//
// Environment variables are not read; use the JSON file or flags.
package config
