package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all coordinator configuration.
type Config struct {
	Paths    PathConfig
	Runtime  RuntimeConfig
	Logging  LogConfig
	Status   StatusConfig
	Workflow WorkflowConfig
}

// PathConfig holds filesystem locations.
type PathConfig struct {
	ModuleDir  string `envconfig:"ADAPTYST_MODULE_DIR" default:"/opt/adaptyst/modules"`
	SystemFile string `envconfig:"ADAPTYST_CONFIG" default:"/etc/adaptyst.conf"`
	LocalFile  string `envconfig:"ADAPTYST_LOCAL_CONFIG"`
	TmpRoot    string `envconfig:"ADAPTYST_TMP_DIR"`
}

// RuntimeConfig holds coordination tunables.
type RuntimeConfig struct {
	BufSize       int           `envconfig:"ADAPTYST_BUF_SIZE" default:"1024"`
	ListenTimeout time.Duration `envconfig:"ADAPTYST_LISTEN_TIMEOUT" default:"1s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"ADAPTYST_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"ADAPTYST_LOG_DEV" default:"false"`
}

// StatusConfig holds the optional status server configuration.
// An empty address disables the server.
type StatusConfig struct {
	Address string `envconfig:"ADAPTYST_STATUS_ADDR"`
	RPS     int    `envconfig:"ADAPTYST_STATUS_RPS" default:"50"`
	Burst   int    `envconfig:"ADAPTYST_STATUS_BURST" default:"100"`
}

// WorkflowConfig holds the external workflow compiler.
type WorkflowConfig struct {
	Compiler string `envconfig:"ADAPTYST_WORKFLOW_COMPILER" default:"adaptyst-compile"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.fillDerived()
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Paths: PathConfig{
			ModuleDir:  "/opt/adaptyst/modules",
			SystemFile: "/etc/adaptyst.conf",
		},
		Runtime: RuntimeConfig{
			BufSize:       1024,
			ListenTimeout: time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Status: StatusConfig{
			RPS:   50,
			Burst: 100,
		},
		Workflow: WorkflowConfig{
			Compiler: "adaptyst-compile",
		},
	}
	cfg.fillDerived()
	return cfg
}

func (c *Config) fillDerived() {
	if c.Paths.LocalFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Paths.LocalFile = filepath.Join(home, ".adaptyst", "adaptyst.conf")
		}
	}
	if c.Paths.TmpRoot == "" {
		c.Paths.TmpRoot = os.TempDir()
	}
}

// LocalConfigDir is the directory holding the local config file. Modules
// keep their own per-user state there.
func (c *Config) LocalConfigDir() string {
	return filepath.Dir(c.Paths.LocalFile)
}
