package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "sigview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.RelayURL)
	assert.Empty(t, cfg.AuthTokens)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
addr: "127.0.0.1:9000"
relay_url: "http://relay.internal:8080"
relay_api_key: "k"
self_number: "+15559990000"
auth_tokens:
  tok1: alice
  tok2: bob
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "http://relay.internal:8080", cfg.RelayURL)
	assert.Equal(t, "+15559990000", cfg.SelfNumber)
	assert.Equal(t, map[string]string{"tok1": "alice", "tok2": "bob"}, cfg.AuthTokens)
}

func TestLoadConfigBadYaml(t *testing.T) {
	path := writeConfigFile(t, "auth_tokens: [not a map")
	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestOverlayFileWinsWhenFlagUnset(t *testing.T) {
	cfg := &Config{Addr: "127.0.0.1:9000", RelayURL: "http://relay.internal:8080"}
	cfg.overlayFlags()
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "http://relay.internal:8080", cfg.RelayURL)
	// Unset everywhere: flag default applies.
	assert.Equal(t, "", cfg.SelfNumber)
}

func TestOverlayFlagWinsWhenSet(t *testing.T) {
	require.NoError(t, flag.Set("relay-api-key", "from-flag"))

	cfg := &Config{RelayAPIKey: "from-file"}
	cfg.overlayFlags()
	assert.Equal(t, "from-flag", cfg.RelayAPIKey)
}
