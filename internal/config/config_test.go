// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Covers defaults, duration parsing, and scheme checks

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: ws://localhost:8001
  http_url: http://localhost:8001
  token: secret
user:
  id: harper
connection:
  backoff_base: 500ms
  backoff_cap: 10s
operations:
  timeout: 15s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8001", cfg.Server.WSURL)
	assert.Equal(t, "http://localhost:8001", cfg.Server.HTTPURL)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "harper", cfg.User.ID)
	assert.Equal(t, 500*time.Millisecond, cfg.Connection.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Connection.BackoffCap)
	assert.Equal(t, 15*time.Second, cfg.Operations.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: ws://localhost:8001
  http_url: http://localhost:8001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultUserID, cfg.User.ID)
	assert.Equal(t, DefaultBackoffBase, cfg.Connection.BackoffBase)
	assert.Equal(t, DefaultBackoffCap, cfg.Connection.BackoffCap)
	assert.Equal(t, DefaultOperationTimeout, cfg.Operations.Timeout)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("FOLD_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
server:
  ws_url: ws://localhost:8001
  http_url: http://localhost:8001
  token: ${FOLD_TEST_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: ws://localhost:8001
  http_url: http://localhost:8001
  token: ${FOLD_DEFINITELY_UNSET_VAR}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: ws://localhost:8001
  http_url: http://localhost:8001
connection:
  backoff_base: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff_base")
}

func TestValidate_RequiresWSScheme(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{WSURL: "http://localhost:8001", HTTPURL: "http://localhost:8001"},
	}
	cfg.applyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws or wss")
}

func TestValidate_RequiresHTTPScheme(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{WSURL: "ws://localhost:8001", HTTPURL: "ftp://localhost"},
	}
	cfg.applyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http or https")
}

func TestValidate_BackoffOrdering(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{WSURL: "ws://localhost:8001", HTTPURL: "http://localhost:8001"},
		Connection: ConnectionConfig{
			BackoffBase: 10 * time.Second,
			BackoffCap:  time.Second,
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff_base")
}
