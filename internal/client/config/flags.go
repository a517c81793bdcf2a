package config

import (
	"github.com/spf13/pflag"
)

const (
	flagConfig   = "config"
	flagServer   = "server"
	flagToken    = "token"
	flagDB       = "db"
	flagSchema   = "schema"
	flagInterval = "interval"
	flagTimeout  = "timeout"
	flagPolicy   = "failure-policy"
	flagSnapshot = "snapshot"
	flagLogLevel = "log-level"
)

// RegisterFlags adds the client flags to fs with defaults from
// LoadDefaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := &Config{}
	d.LoadDefaults()

	fs.StringP(flagConfig, "c", "", "path to a JSON or TOML config file")
	fs.StringP(flagServer, "a", d.ServerEndpointAddr, "address and port of the sync server")
	fs.String(flagToken, d.AccessToken, "access token sent to the server")
	fs.String(flagDB, d.DatabasePath, "path of the local SQLite database")
	fs.String(flagSchema, d.SchemaPath, "path of the YAML table schema")
	fs.Duration(flagInterval, d.SyncInterval, "interval between sync rounds in run mode")
	fs.Duration(flagTimeout, d.RequestTimeout, "timeout of a single server call")
	fs.String(flagPolicy, d.FailurePolicy, "what to do with refused upload rows: report or requeue")
	fs.Bool(flagSnapshot, d.UseSnapshot, "bootstrap an empty database from a server snapshot")
	fs.String(flagLogLevel, d.LogLevel, "log level: debug, info, warn or error")
}

// Load builds a Config from defaults, the file named by --config and the
// flags explicitly set on fs, in that order.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path, _ := fs.GetString(flagConfig); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case flagServer:
			cfg.ServerEndpointAddr, err = fs.GetString(f.Name)
		case flagToken:
			cfg.AccessToken, err = fs.GetString(f.Name)
		case flagDB:
			cfg.DatabasePath, err = fs.GetString(f.Name)
		case flagSchema:
			cfg.SchemaPath, err = fs.GetString(f.Name)
		case flagInterval:
			cfg.SyncInterval, err = fs.GetDuration(f.Name)
		case flagTimeout:
			cfg.RequestTimeout, err = fs.GetDuration(f.Name)
		case flagPolicy:
			cfg.FailurePolicy, err = fs.GetString(f.Name)
		case flagSnapshot:
			cfg.UseSnapshot, err = fs.GetBool(f.Name)
		case flagLogLevel:
			cfg.LogLevel, err = fs.GetString(f.Name)
		}
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
