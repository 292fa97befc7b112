package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wayfarer/cli/internal/utils"
)

func setup(t *testing.T) (home, path string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	Reset()
	t.Cleanup(Reset)
	return home, filepath.Join(home, "conf", "wayfarer.yaml")
}

func TestInitialize_CreatesDefaultFile(t *testing.T) {
	home, path := setup(t)

	require.NoError(t, Initialize(path))
	assert.Equal(t, path, Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg := Get()
	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
	assert.Equal(t, 10*time.Second, cfg.Server.TimeoutDuration())
	assert.Equal(t, "csrf_token", cfg.Cookies.CSRFName)
	assert.Equal(t, "X-CSRFToken", cfg.Cookies.CSRFHeader)
	assert.Equal(t, filepath.Join(home, ".wayfarer", "state.db"), cfg.State.Path)
	assert.Equal(t, 60*time.Second, cfg.Auth.ResendCooldownDuration())
	assert.Equal(t, 15*time.Minute, cfg.Auth.LoginLockoutDuration())
}

func TestInitialize_ReadsExistingFile(t *testing.T) {
	_, path := setup(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	data := "server:\n  url: https://api.example.com\n  timeout: 3s\nstate:\n  path: ~/custom.db\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	require.NoError(t, Initialize(path))
	cfg := Get()
	assert.Equal(t, "https://api.example.com", cfg.Server.URL)
	assert.Equal(t, 3*time.Second, cfg.Server.TimeoutDuration())
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), "custom.db"), cfg.State.Path)
	assert.Equal(t, "X-CSRFToken", cfg.Cookies.CSRFHeader)
}

func TestSet(t *testing.T) {
	_, path := setup(t)
	require.NoError(t, Initialize(path))

	require.NoError(t, Set("server.url", "https://api.example.com"))
	require.NoError(t, Set("format.colors", "false"))
	assert.Equal(t, "https://api.example.com", Get().Server.URL)
	assert.False(t, Get().Format.Colors)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved Config
	require.NoError(t, yaml.Unmarshal(raw, &saved))
	assert.Equal(t, "https://api.example.com", saved.Server.URL)

	for key, value := range map[string]string{
		"server.timeout": "soon",
		"log.level":      "loud",
		"format.default": "xml",
		"format.colors":  "maybe",
		"nope":           "x",
	} {
		err := Set(key, value)
		assert.True(t, utils.IsValidationError(err), key)
	}
}

func TestOverrides(t *testing.T) {
	_, path := setup(t)
	require.NoError(t, Initialize(path))

	assert.Equal(t, "table", GetOutputFormat())
	SetOutputFormat("json")
	assert.Equal(t, "json", GetOutputFormat())

	SetDebug(true)
	assert.True(t, IsDebug())

	SetServerURL("http://127.0.0.1:9000")
	assert.Equal(t, "http://127.0.0.1:9000", Get().Server.URL)

	Reset()
	assert.False(t, IsDebug())
	assert.Empty(t, Path())
}

func TestFlatten(t *testing.T) {
	cfg := Defaults("/home/ana")
	flat := cfg.Flatten()

	for key := range settableKeys {
		assert.Contains(t, flat, key)
	}
	assert.Equal(t, "http://localhost:8000", flat["server.url"])
	assert.Equal(t, true, flat["format.colors"])
}
