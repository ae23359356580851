// ABOUTME: Bridge server configuration from defaults, YAML, .env and environment
// ABOUTME: Command-line flags are layered on top by the cobra commands
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/internal/logger"
)

// ErrInvalidConfig is wrapped by every load and validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// DefaultEnvFile is read when present; its absence is not an error.
const DefaultEnvFile = ".env"

// Config is the complete server configuration.
type Config struct {
	Addr string `yaml:"addr"`
	Name string `yaml:"name"`
	Mode string `yaml:"mode"`

	InboundCapacity  int `yaml:"inbound_capacity"`
	OutboundCapacity int `yaml:"outbound_capacity"`
	MixIntervalMs    int `yaml:"mix_interval_ms"`
	DeliveryPollMs   int `yaml:"delivery_poll_ms"`

	// MasterHosts lists remote hosts whose connections may act as master.
	MasterHosts []string `yaml:"master_hosts"`
	AutoAdmit   bool     `yaml:"auto_admit"`
	EnableMDNS  bool     `yaml:"enable_mdns"`

	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	Log logger.Config `yaml:"log"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Addr:             ":3000",
		Name:             defaultName(),
		Mode:             "production",
		InboundCapacity:  bridge.DefaultInboundCapacity,
		OutboundCapacity: bridge.DefaultOutboundCapacity,
		MixIntervalMs:    int(bridge.DefaultMixInterval / time.Millisecond),
		MasterHosts:      []string{"127.0.0.1", "::1"},
		EnableMDNS:       true,
		Log: logger.Config{
			Level:      "info",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
	}
}

func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "confbridge"
	}
	return hostname + "-confbridge"
}

// Options selects the optional files Load reads.
type Options struct {
	// ConfigFile is a YAML file; empty skips it.
	ConfigFile string
	// EnvFile is a dotenv file; empty means DefaultEnvFile, which may be
	// missing. An explicitly named file must exist.
	EnvFile string
}

// Load builds a Config from defaults, then the YAML file, then the dotenv
// file and finally the process environment. Variables already present in
// the environment win over the dotenv file.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.ConfigFile != "" {
		if err := cfg.loadYAML(opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if opts.EnvFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := cast.ToBoolE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("BRIDGE_ADDR", &c.Addr)
	str("BRIDGE_NAME", &c.Name)
	str("MODE", &c.Mode)
	num("INBOUND_CAPACITY", &c.InboundCapacity)
	num("OUTBOUND_CAPACITY", &c.OutboundCapacity)
	num("MIX_INTERVAL_MS", &c.MixIntervalMs)
	num("DELIVERY_POLL_MS", &c.DeliveryPollMs)
	if v, ok := lookup("MASTER_HOSTS"); ok {
		c.MasterHosts = SplitList(v)
	}
	flag("AUTO_ADMIT", &c.AutoAdmit)
	flag("ENABLE_MDNS", &c.EnableMDNS)
	str("TLS_CERT_FILE", &c.TLSCertFile)
	str("TLS_KEY_FILE", &c.TLSKeyFile)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILENAME", &c.Log.Filename)
	num("LOG_MAX_SIZE", &c.Log.MaxSize)
	num("LOG_MAX_AGE", &c.Log.MaxAge)
	num("LOG_MAX_BACKUPS", &c.Log.MaxBackups)
	flag("LOG_CONSOLE", &c.Log.Console)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Bridge derives the mixing engine configuration.
func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		InboundCapacity:  c.InboundCapacity,
		OutboundCapacity: c.OutboundCapacity,
		MixInterval:      time.Duration(c.MixIntervalMs) * time.Millisecond,
		DeliveryPoll:     time.Duration(c.DeliveryPollMs) * time.Millisecond,
	}
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}
	if c.MixIntervalMs <= 0 {
		return fmt.Errorf("%w: mix interval must be positive, got %dms", ErrInvalidConfig, c.MixIntervalMs)
	}
	if c.InboundCapacity <= 0 || c.OutboundCapacity <= 0 {
		return fmt.Errorf("%w: ring capacities must be positive", ErrInvalidConfig)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("%w: TLS needs both a certificate and a key", ErrInvalidConfig)
	}
	if err := c.Bridge().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
