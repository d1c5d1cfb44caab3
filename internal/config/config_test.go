package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launchpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesSources(t *testing.T) {
	path := writeConfig(t, `
deployer: "0x00000000000000000000000000000000000000d0"
graduation-threshold: "50000"
batch-size: 10
log-level: warn
`)
	t.Setenv("LAUNCHPOOL_PG_DSN", "postgres://replay@localhost/launchpool")

	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("in", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug", "--in", "ops.jsonl"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	require.Equal(t, "0x00000000000000000000000000000000000000d0", cfg.Engine.Deployer)
	require.Equal(t, "50000", cfg.Engine.GraduationThreshold)
	require.Equal(t, uint64(10), cfg.BatchSize)
	require.Equal(t, "debug", cfg.LogLevel, "flags win over the config file")
	require.Equal(t, "ops.jsonl", cfg.In)
	require.Equal(t, "postgres://replay@localhost/launchpool", cfg.PGDSN)

	require.Equal(t, "./data/snapshot.json", cfg.Snapshot)
	require.True(t, cfg.CheckpointEnabled)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, uint64(5000), cfg.Engine.MaxPriceChangeBps)
	require.Equal(t, time.Hour, cfg.Engine.BreakerCooldown)
	require.Equal(t, "0", cfg.Engine.MaxVolumePerRound)
	require.Equal(t, "30000000000000000000", cfg.Engine.CurveVirtualBase)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestLoadQuotePath(t *testing.T) {
	path := writeConfig(t, `
path:
  - "0x000000000000000000000000000000000000000a"
  - " 0x000000000000000000000000000000000000000b "
amount: "100"
`)
	cfg, err := LoadQuote(path, nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"0x000000000000000000000000000000000000000a",
		"0x000000000000000000000000000000000000000b",
	}, cfg.Path)
	require.Equal(t, "100", cfg.Amount)
	require.Equal(t, "warn", cfg.LogLevel)
	require.False(t, cfg.ExactOut)

	t.Setenv("LAUNCHPOOL_PATH", "0x0a, ,0x0b")
	cfg, err = LoadQuote("", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"0x0a", "0x0b"}, cfg.Path)
}

func TestLoadDecodeDefaults(t *testing.T) {
	t.Setenv("LAUNCHPOOL_EVENT", "Swap,GraduationExecuted")
	cfg, err := LoadDecode("", nil)
	require.NoError(t, err)
	require.Equal(t, "./data/logs.jsonl", cfg.In)
	require.Equal(t, "./data/typed_events.jsonl", cfg.Out)
	require.Equal(t, "./data/decode_errors.jsonl", cfg.Errors)
	require.Equal(t, []string{"Swap", "GraduationExecuted"}, cfg.Events)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("amount", "")
	require.NoError(t, err)
	require.Equal(t, "0", v.String())

	v, err = ParseAmount("amount", " 123456789012345678901234567890 ")
	require.NoError(t, err)
	require.Equal(t, "123456789012345678901234567890", v.String())

	for _, bad := range []string{"-1", "1.5", "1e18", "0x10", "ten"} {
		_, err := ParseAmount("amount", bad)
		require.Error(t, err, bad)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("")
	require.NoError(t, err)
	require.Zero(t, got)

	got, err = ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), got)

	got, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), got)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}
