package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linksphere/confbridge/internal/bridge"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bc := cfg.Bridge()
	assert.Equal(t, 160, bc.FrameBytes())
	assert.Equal(t, 16384, bc.InboundCapacity)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.MasterHosts)
	assert.False(t, cfg.TLSEnabled())
}

func TestLoadPrecedence(t *testing.T) {
	yamlPath := writeFile(t, "bridge.yaml", `
addr: ":4000"
mix_interval_ms: 40
inbound_capacity: 8000
log:
  level: debug
`)
	envPath := writeFile(t, "bridge.env", "MIX_INTERVAL_MS=10\nOUTBOUND_CAPACITY=4096\n")
	t.Setenv("OUTBOUND_CAPACITY", "2048")
	t.Setenv("AUTO_ADMIT", "true")
	t.Setenv("MASTER_HOSTS", " 10.0.0.1, ,10.0.0.2 ")

	t.Cleanup(func() { os.Unsetenv("MIX_INTERVAL_MS") })

	cfg, err := Load(Options{ConfigFile: yamlPath, EnvFile: envPath})
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Addr, "yaml over default")
	assert.Equal(t, 8000, cfg.InboundCapacity, "yaml over default")
	assert.Equal(t, 10, cfg.MixIntervalMs, "dotenv over yaml")
	assert.Equal(t, 2048, cfg.OutboundCapacity, "environment over dotenv")
	assert.True(t, cfg.AutoAdmit)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.MasterHosts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Millisecond, cfg.Bridge().MixInterval)
}

func TestLoadWithoutDefaultEnvFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Addr)
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "nope.env")})
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "addr: [unterminated\n")

	_, err := Load(Options{ConfigFile: path})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	env := map[string]string{
		"INBOUND_CAPACITY": "lots",
		"AUTO_ADMIT":       "maybe",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "INBOUND_CAPACITY")
	assert.Contains(t, err.Error(), "AUTO_ADMIT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"zero interval", func(c *Config) { c.MixIntervalMs = 0 }},
		{"negative capacity", func(c *Config) { c.InboundCapacity = -1 }},
		{"capacity below frame", func(c *Config) { c.OutboundCapacity = 100 }},
		{"cert without key", func(c *Config) { c.TLSCertFile = "cert.pem" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateKeepsBridgeCause(t *testing.T) {
	cfg := Default()
	cfg.InboundCapacity = 10

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, bridge.ErrInvalidConfig)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList("a,b"))
	assert.Equal(t, []string{"a"}, SplitList(" a , "))
}
