package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestReadConfigFileHCL(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "sandbox.hcl", `
home = "/var/lib/sandbox"
source = "walrus"
workers = 8

walrus {
  checkpoint_dir = "/data/checkpoints"
}

replay {
  prefetch_depth = 3
  version_patch = true
}
`)

	cfg, err := ReadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sandbox", cfg.Home)
	assert.Equal(t, SourceWalrus, cfg.Source)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "/data/checkpoints", cfg.Walrus.CheckpointDir)
	assert.Equal(t, 3, cfg.Replay.PrefetchDepth)
	assert.True(t, cfg.Replay.VersionPatch)

	// untouched fields keep their defaults
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.NotNil(t, cfg.GRPC)
	assert.NotNil(t, cfg.Telemetry)
}

func TestReadConfigFileJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "sandbox.json", `{
  "log_level": "DEBUG",
  "grpc": {"url": "https://fullnode.example:443", "api_key": "k"},
  "replay": {"prefetch_limit": 50}
}`)

	cfg, err := ReadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "https://fullnode.example:443", cfg.GRPC.URL)
	assert.Equal(t, "k", cfg.GRPC.APIKey)
	assert.Equal(t, 50, cfg.Replay.PrefetchLimit)
	assert.True(t, cfg.Replay.DynamicFieldPrefetch)
	assert.Equal(t, DefaultHome, cfg.Home)
}

func TestReadConfigFileSuffix(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "sandbox.yaml", "home: x\n")

	_, err := ReadConfigFile(path)
	assert.ErrorContains(t, err, "neither hcl nor json")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvHome:               "/tmp/sandbox",
		EnvWalrusCheckpoints:  "/tmp/chk",
		EnvGRPCEndpoint:       "grpc.example:443",
		EnvGraphQLAPIKey:      "secret",
		EnvPredictivePrefetch: "true",
		EnvTrace:              "1",
		EnvVersionPatch:       "",
		EnvJaegerURL:          "http://localhost:14268/api/traces",
	}

	lookup := func(name string) (string, bool) {
		v, ok := env[name]

		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "/tmp/sandbox", cfg.Home)
	assert.Equal(t, "/tmp/sandbox", cfg.HomeDir())
	assert.Equal(t, "/tmp/chk", cfg.Walrus.CheckpointDir)
	assert.Equal(t, "grpc.example:443", cfg.GRPC.URL)
	assert.Equal(t, "secret", cfg.GraphQL.APIKey)
	assert.True(t, cfg.Replay.PredictivePrefetch)
	assert.True(t, cfg.Telemetry.Trace)
	assert.False(t, cfg.Replay.VersionPatch)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.Telemetry.JaegerURL)

	env[EnvTrace] = "sometimes"
	assert.Error(t, DefaultConfig().ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Source = "http"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())
}
