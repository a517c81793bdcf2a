// Package config loads runtime configuration for the offsync client CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or TOML file selected with --config/-c. Files ending
//     in .toml are read as TOML.
//  3. Command-line flags registered by RegisterFlags, which override
//     earlier values when given explicitly.
//
// # File schema
//
// Durations accept strings like "30s", or integer nanoseconds in JSON:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "database_path": "offsync.db",
//	  "schema_path": "schema.yaml",
//	  "sync_interval": "30s",
//	  "request_timeout": "10s",
//	  "failure_policy": "report",
//	  "use_snapshot": true,
//	  "log_level": "info"
//	}
//
// The loaded Config is installed once per process with Initialize.
// Constructors still take it explicitly.
package config
