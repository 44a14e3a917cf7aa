package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestReadFileDropsUnderscoreKeysAndMergesLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plancrawl.json")
	writeFile(t, path, `{
		// comments are fine
		"defaults": {
			"_comment": "ignored",
			"timeout": 45,
			"min_id_goal": 200,
			"log_level": "warn",
		}
	}`)
	writeFile(t, filepath.Join(dir, "plancrawl.local.json"), `{"defaults": {"min_id_goal": 20}}`)

	values, err := ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, values, "_comment")
	require.Equal(t, float64(45), values["timeout"])
	require.Equal(t, float64(20), values["min_id_goal"])
	require.Equal(t, "warn", values["log_level"])
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.True(t, os.IsNotExist(err))
}

func TestSetConversions(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("timeout", float64(60)))
	require.Equal(t, time.Minute, cfg.HTTPTimeout)
	require.NoError(t, cfg.Set("timeout", "90s"))
	require.Equal(t, 90*time.Second, cfg.HTTPTimeout)
	require.NoError(t, cfg.Set("proxies", "http://a:1, http://b:2"))
	require.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.Proxies)
	require.NoError(t, cfg.Set("json_log", "true"))
	require.True(t, cfg.JSONLog)
	require.NoError(t, cfg.Set("no_such_key", 1))
	require.Error(t, cfg.Set("min_id_goal", "lots"))
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	writeFile(t, path, `{"defaults": {"min_id_goal": 40, "concurrency": 2, "timeout": 10, "headers": ["From: a@example.org"]}}`)
	t.Setenv("PLANCRAWL_CONCURRENCY", "3")

	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--timeout", "5s", "-H", "x-run: nightly"}))

	cfg, err := Load(cmd)
	require.NoError(t, err)
	require.Equal(t, path, cfg.ConfigFile)
	require.Equal(t, 40, cfg.MinIDGoal)
	require.Equal(t, 3, cfg.Concurrency)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, map[string]string{"From": "a@example.org", "X-Run": "nightly"}, cfg.Headers)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.json")}))

	_, err := Load(cmd)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))

	cfg.LogLevel = "loud"
	require.Error(t, validate(cfg))

	cfg = Default()
	cfg.Concurrency = 0
	require.Error(t, validate(cfg))
}
