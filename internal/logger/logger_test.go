package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultLoggerUsable(t *testing.T) {
	require.NotNil(t, Lg)
	Info("default logger works", zap.Int("n", 1))
}

func TestInitWritesToFile(t *testing.T) {
	prev := Lg
	t.Cleanup(func() { Lg = prev })

	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	err := Init(&Config{Level: "debug", Filename: path, MaxSize: 1}, "production")
	require.NoError(t, err)

	Debug("tick skipped", zap.String("reason", "no channels"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick skipped")
	assert.Contains(t, string(data), `"reason":"no channels"`)
}

func TestInitRejectsBadLevel(t *testing.T) {
	prev := Lg
	t.Cleanup(func() { Lg = prev })

	err := Init(&Config{Level: "loud"}, "dev")
	assert.Error(t, err)
}

func TestNamed(t *testing.T) {
	l := Named("engine")
	require.NotNil(t, l)
	l.Debug("named logger works")
}
