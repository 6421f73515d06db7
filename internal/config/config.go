package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds the collector manager configuration.
type Config struct {
	// Company is the LogicMonitor account name, used as the endpoint subdomain.
	Company string `yaml:"company"`

	// User and Password authenticate every RPC call.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// CredentialsFile is a key=value file read when the credentials above are unset.
	CredentialsFile string `yaml:"credentials_file"`

	// ServiceHost is the domain under which {company}.{host} is resolved.
	ServiceHost string `yaml:"service_host"`

	// RPCPath is the path prefix in front of the RPC action name.
	RPCPath string `yaml:"rpc_path"`

	// Endpoint replaces https://{company}.{host} when set.
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout bounds a single RPC request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryMax is the number of transport retries. Zero leaves retry to the caller.
	RetryMax int `yaml:"retry_max"`

	// InstallDir is where installers are cached and the collector is installed.
	InstallDir string `yaml:"install_dir"`

	// Hostname overrides the detected FQDN used as the inventory key.
	Hostname string `yaml:"hostname"`

	// ServiceBackend selects the service manager: "auto", "systemd" or "sysv".
	ServiceBackend string `yaml:"service_backend"`

	// LockDir holds per-host lock files. Empty disables locking.
	LockDir string `yaml:"lock_dir"`

	// LockTimeout bounds how long a host lock is waited for.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// LogDir is the directory for log files. Empty logs to stderr.
	LogDir string `yaml:"log_dir"`

	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CredentialsFile: "/tmp/lm_credentials.txt",
		ServiceHost:     "logicmonitor.com",
		RPCPath:         "/santaba/rpc",
		RequestTimeout:  30 * time.Second,
		InstallDir:      "/usr/local/logicmonitor",
		ServiceBackend:  "auto",
		LockDir:         "/var/run/logicmonitor",
		LockTimeout:     30 * time.Second,
	}
}

// Load applies, in order, defaults, the YAML file named by LM_CONFIG and
// LM_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("LM_CONFIG"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	strs := map[string]*string{
		"LM_COMPANY":          &c.Company,
		"LM_USER":             &c.User,
		"LM_PASSWORD":         &c.Password,
		"LM_CREDENTIALS_FILE": &c.CredentialsFile,
		"LM_SERVICE_HOST":     &c.ServiceHost,
		"LM_RPC_PATH":         &c.RPCPath,
		"LM_ENDPOINT":         &c.Endpoint,
		"LM_INSTALL_DIR":      &c.InstallDir,
		"LM_HOSTNAME":         &c.Hostname,
		"LM_SERVICE_BACKEND":  &c.ServiceBackend,
		"LM_LOCK_DIR":         &c.LockDir,
		"LM_LOG_DIR":          &c.LogDir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"LM_RPC_TIMEOUT":  &c.RequestTimeout,
		"LM_LOCK_TIMEOUT": &c.LockTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("LM_RPC_RETRY_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LM_RPC_RETRY_MAX: %w", err)
		}
		c.RetryMax = n
	}

	if v := os.Getenv("LM_DEBUG"); v != "" {
		c.Debug = v == "true"
	}
	return nil
}

// Validate checks values that do not depend on credentials.
func (c *Config) Validate() error {
	if c.InstallDir == "" {
		return fmt.Errorf("install dir is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry max must not be negative, got %d", c.RetryMax)
	}
	switch c.ServiceBackend {
	case "auto", "systemd", "sysv":
	default:
		return fmt.Errorf("unknown service backend %q (expected \"auto\", \"systemd\" or \"sysv\")", c.ServiceBackend)
	}
	return nil
}

// NewLogger creates a structured JSON logger. It writes to {LogDir}/{name}.log,
// or to stderr when no log directory is configured.
func NewLogger(cfg *Config, name string) (*slog.Logger, error) {
	var out io.Writer = os.Stderr
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}

		logPath := filepath.Join(cfg.LogDir, name+".log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logPath, err)
		}
		out = file
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
