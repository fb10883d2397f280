package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: "0.0.0.0"
  port: 9090
  db_path: "/var/lib/capsuled"
logging:
  level: debug
sharing:
  outbox:
    capacity: 64
    max_attempts: 7
    retry_backoff: 250ms
  peers:
    cap_remote: "https://peer.example.com"
cleanup:
  enabled: true
  cron: "*/5 * * * *"
  batch_size: 10
limits:
  max_memories_per_capsule: 1000
  max_blob_bytes: "32 KiB"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "capsuled.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadEffectiveFromFile(t *testing.T) {
	res, err := LoadEffective(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "config", res.Source)
	require.Equal(t, "0.0.0.0:9090", res.Addr)
	require.Equal(t, "/var/lib/capsuled", res.DBPath)
	require.Equal(t, "debug", res.Config.Logging.Level)
	require.Equal(t, 64, res.Config.Sharing.Outbox.Capacity)
	require.Equal(t, 7, res.Config.Sharing.Outbox.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, res.Config.Sharing.Outbox.RetryBackoff.Std())
	require.Equal(t, "https://peer.example.com", res.Config.Sharing.Peers["cap_remote"])
	require.True(t, res.Config.Cleanup.Enabled)
	require.Equal(t, 1000, res.Config.Limits.MaxMemoriesPerCapsule)
	require.Equal(t, SizeBytes(32*1024), res.Config.Limits.MaxBlobBytes)
}

func TestLoadEffectiveEnvWinsOverFile(t *testing.T) {
	t.Setenv("CAPSULED_ADDR", "10.0.0.1:7000")
	t.Setenv("CAPSULED_DB_PATH", "/tmp/override")
	t.Setenv("CAPSULED_LOG_LEVEL", "warn")
	t.Setenv("CAPSULED_BACKEND_KEYS", "bk1, bk2,")

	res, err := LoadEffective(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "env", res.Source)
	require.Equal(t, "10.0.0.1:7000", res.Addr)
	require.Equal(t, "/tmp/override", res.DBPath)
	require.Equal(t, "warn", res.Config.Logging.Level)
	require.Equal(t, []string{"bk1", "bk2"}, res.Config.Security.APIKeys.Backend)
}

func TestLoadEffectiveDefaults(t *testing.T) {
	res, err := LoadEffective("")
	require.NoError(t, err)
	require.Equal(t, "default", res.Source)
	require.Equal(t, "127.0.0.1:8080", res.Addr)
	require.Equal(t, "./capsuledata", res.DBPath)
}

func TestLoadEffectiveBadFile(t *testing.T) {
	_, err := LoadEffective(writeConfig(t, "server: [not a map"))
	require.Error(t, err)

	_, err = LoadEffective(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDurationAndSizeParsing(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
sharing:
  outbox:
    retry_backoff: 1500
limits:
  max_blob_bytes: 1048576
`))
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, cfg.Sharing.Outbox.RetryBackoff.Std())
	require.Equal(t, SizeBytes(1<<20), cfg.Limits.MaxBlobBytes)
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	require.Equal(t, "/x/explicit.yaml", ResolveConfigPath("/x/explicit.yaml", true))

	t.Setenv("CAPSULED_CONFIG", "/x/env.yaml")
	require.Equal(t, "/x/env.yaml", ResolveConfigPath("", false))
}

func TestRuntimeKeyAccessors(t *testing.T) {
	SetRuntime(&RuntimeConfig{
		BackendKeys: map[string]struct{}{"b": {}},
		SigningKeys: map[string]struct{}{"s": {}},
	})
	t.Cleanup(func() { SetRuntime(nil) })

	require.Contains(t, GetBackendKeys(), "b")
	require.Contains(t, GetSigningKeys(), "s")
	require.Empty(t, GetAdminKeys())

	// returned maps are copies
	GetSigningKeys()["injected"] = struct{}{}
	require.NotContains(t, GetSigningKeys(), "injected")
}
