package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
)

const (
	PolicyReport  = "report"
	PolicyRequeue = "requeue"
)

// Config holds runtime settings for the offsync CLI.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	DatabasePath       string
	SchemaPath         string
	SyncInterval       time.Duration
	RequestTimeout     time.Duration
	FailurePolicy      string
	UseSnapshot        bool
	LogLevel           string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "offsync.db"
	c.SchemaPath = "schema.yaml"
	c.SyncInterval = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.FailurePolicy = PolicyReport
	c.UseSnapshot = true
	c.LogLevel = "info"
}

func (c *Config) Validate() error {
	switch c.FailurePolicy {
	case PolicyReport, PolicyRequeue:
	default:
		return fmt.Errorf("%w: failure policy must be %q or %q, got %q", common.ErrorValidation, PolicyReport, PolicyRequeue, c.FailurePolicy)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive", common.ErrorValidation)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	return logging.ParseLevel(c.LogLevel)
}

var (
	mu      sync.Mutex
	current *Config
)

// Initialize installs cfg as the process configuration. It succeeds once;
// later calls return common.ErrConfigInitialized.
func Initialize(cfg *Config) error {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return common.ErrConfigInitialized
	}
	current = cfg
	return nil
}
