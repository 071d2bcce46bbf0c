package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up next to the executable when no
// explicit path is given.
const FileName = "config.yaml"

// ErrInvalidIP is returned when ws_ip is not a dotted-quad IPv4 address.
var ErrInvalidIP = errors.New("invalid ip in config file")

// Config is the global configuration. It is loaded once at startup and
// passed explicitly to the components that need it.
type Config struct {
	WSIP              string          `yaml:"ws_ip"`
	WSPort            int             `yaml:"ws_port"`
	BackupLocation    string          `yaml:"backup_location"`
	BackupCompression string          `yaml:"backup_compression"`
	SessionsDir       string          `yaml:"sessions_dir"`
	PipeDir           string          `yaml:"pipe_dir"`
	Scheduler         SchedulerConfig `yaml:"scheduler"`
	Logging           LoggingConfig   `yaml:"logging"`

	// dir is the directory of the loaded file; relative paths resolve
	// against it.
	dir string
}

type SchedulerConfig struct {
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	BackupTick        time.Duration `yaml:"backup_tick"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		WSIP:              "127.0.0.1",
		WSPort:            7878,
		BackupLocation:    "backups",
		BackupCompression: "zstd",
		SessionsDir:       "sessions",
		Scheduler: SchedulerConfig{
			BroadcastInterval: 250 * time.Millisecond,
			BackupTick:        time.Second,
			SettleDelay:       20 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config at path on top of the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns config.yaml in the directory of the running binary.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return FileName
	}
	return filepath.Join(filepath.Dir(exe), FileName)
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := ParseIPv4(c.WSIP); err != nil {
		return err
	}
	if c.WSPort <= 0 || c.WSPort > 65535 {
		return fmt.Errorf("ws_port %d out of range", c.WSPort)
	}
	switch c.BackupCompression {
	case "", "zstd", "lz4", "none":
	default:
		return fmt.Errorf("unknown backup_compression %q", c.BackupCompression)
	}
	if c.Scheduler.BroadcastInterval <= 0 || c.Scheduler.BackupTick <= 0 {
		return errors.New("scheduler intervals must be positive")
	}
	if c.Scheduler.SettleDelay < 0 {
		return errors.New("scheduler.settle_delay must not be negative")
	}
	return nil
}

// ParseIPv4 parses a strict dotted-quad address such as "0.0.0.0".
func ParseIPv4(s string) (net.IP, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, s)
	}
	ip := make(net.IP, 4)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIP, s)
		}
		ip[i] = byte(n)
	}
	return ip, nil
}

// ListenAddr returns the websocket listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.WSIP, strconv.Itoa(c.WSPort))
}

// Resolve makes p absolute relative to the config file's directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// SessionsPath is the resolved session definitions directory.
func (c *Config) SessionsPath() string {
	return c.Resolve(c.SessionsDir)
}

// BackupPath is the resolved backup destination root.
func (c *Config) BackupPath() string {
	return c.Resolve(c.BackupLocation)
}

// PipePath is the directory session output is piped into. It defaults to
// $XDG_STATE_HOME/lupus/pipes.
func (c *Config) PipePath() string {
	if c.PipeDir != "" {
		return c.Resolve(c.PipeDir)
	}
	return filepath.Join(stateDir(), "pipes")
}

func stateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, "lupus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", "lupus")
}
