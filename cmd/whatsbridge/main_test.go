package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whatsbridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate(systemdTemplate, map[string]string{
		"EXEC":   "/usr/local/bin/whatsbridge",
		"CONFIG": "/home/u/.whatsbridge/config.yaml",
	})
	assert.Contains(t, out, "ExecStart=/usr/local/bin/whatsbridge serve --config /home/u/.whatsbridge/config.yaml")
	assert.NotContains(t, out, "{{")
}

func TestServiceFile(t *testing.T) {
	linux, err := serviceFile("linux", "/home/u")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/u", ".config", "systemd", "user", "whatsbridge.service"), linux.path)
	assert.Equal(t, systemdTemplate, linux.template)

	darwin, err := serviceFile("darwin", "/Users/u")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(darwin.path, launchdLabel+".plist"))
	assert.Equal(t, launchdTemplate, darwin.template)

	_, err = serviceFile("plan9", "/")
	assert.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	log, closeLog, err := newLogger(config.GeneralConfig{LogLevel: "debug"})
	require.NoError(t, err)
	defer closeLog()
	assert.True(t, log.Enabled(t.Context(), slog.LevelDebug))

	log, closeLog2, err := newLogger(config.GeneralConfig{LogLevel: "bogus"})
	require.NoError(t, err)
	defer closeLog2()
	assert.False(t, log.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, log.Enabled(t.Context(), slog.LevelInfo))
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	log, closeLog, err := newLogger(config.GeneralConfig{LogLevel: "info", LogFile: path})
	require.NoError(t, err)

	log.Info("hello", "k", "v")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
	assert.Contains(t, string(data), "k=v")
}

func TestCheckSessionDBFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	paired, err := checkSessionDB(path)
	require.NoError(t, err)
	assert.False(t, paired)
	assert.FileExists(t, path)
}

func TestCheckPort(t *testing.T) {
	assert.NoError(t, checkPort("127.0.0.1:0"))
}
