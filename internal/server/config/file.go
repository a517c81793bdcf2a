package config

import (
	"github.com/dmitrijs2005/offsync/internal/flagx"
	"github.com/dmitrijs2005/offsync/internal/timex"
)

// FileConfig is the on-disk shape of the server configuration. Durations
// accept "1m" style strings, or integer nanoseconds in JSON. Fields left
// out of the file keep their current value.
type FileConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc" toml:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn" toml:"database_dsn"`
	SchemaPath                  *string         `json:"schema_path" toml:"schema_path"`
	SecretKey                   *string         `json:"secret_key" toml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration"`
	S3RootUser                  *string         `json:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password" toml:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket" toml:"s3_bucket"`
	S3Region                    *string         `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint" toml:"s3_base_endpoint"`
	SnapshotMaxAge              *timex.Duration `json:"snapshot_max_age" toml:"snapshot_max_age"`
	SnapshotURLExpiry           *timex.Duration `json:"snapshot_url_expiry" toml:"snapshot_url_expiry"`
	LogLevel                    *string         `json:"log_level" toml:"log_level"`
}

// parseFile overlays the file named by -c/-config onto config.
// Without the flag nothing is loaded.
func parseFile(config *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	c := &FileConfig{}
	if err := flagx.DecodeConfigFile(path, c); err != nil {
		return err
	}
	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SchemaPath, c.SchemaPath)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.SnapshotMaxAge != nil {
		config.SnapshotMaxAge = c.SnapshotMaxAge.Duration
	}
	if c.SnapshotURLExpiry != nil {
		config.SnapshotURLExpiry = c.SnapshotURLExpiry.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
