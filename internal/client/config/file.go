package config

import (
	"github.com/dmitrijs2005/offsync/internal/flagx"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

// FileConfig is the on-disk shape of Config. Absent keys keep the value
// they already have.
type FileConfig struct {
	ServerEndpointAddr *string         `json:"server_endpoint_addr" toml:"server_endpoint_addr"`
	AccessToken        *string         `json:"access_token" toml:"access_token"`
	DatabasePath       *string         `json:"database_path" toml:"database_path"`
	SchemaPath         *string         `json:"schema_path" toml:"schema_path"`
	SyncInterval       *timex.Duration `json:"sync_interval" toml:"sync_interval"`
	RequestTimeout     *timex.Duration `json:"request_timeout" toml:"request_timeout"`
	FailurePolicy      *string         `json:"failure_policy" toml:"failure_policy"`
	UseSnapshot        *bool           `json:"use_snapshot" toml:"use_snapshot"`
	LogLevel           *string         `json:"log_level" toml:"log_level"`
}

func loadFile(path string, cfg *Config) error {
	fc := &FileConfig{}
	if err := flagx.DecodeConfigFile(path, fc); err != nil {
		return err
	}

	set(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	set(&cfg.AccessToken, fc.AccessToken)
	set(&cfg.DatabasePath, fc.DatabasePath)
	set(&cfg.SchemaPath, fc.SchemaPath)
	set(&cfg.FailurePolicy, fc.FailurePolicy)
	set(&cfg.UseSnapshot, fc.UseSnapshot)
	set(&cfg.LogLevel, fc.LogLevel)
	if fc.SyncInterval != nil {
		cfg.SyncInterval = fc.SyncInterval.Duration
	}
	if fc.RequestTimeout != nil {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
