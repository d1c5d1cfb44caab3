package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EngineConfig describes the deployment every command builds.
type EngineConfig struct {
	Deployer            string
	BaseAsset           string
	FeeToSetter         string
	RouterOwner         string
	GraduationOwner     string
	GraduationThreshold string
	MaxPriceChangeBps   uint64
	MaxVolumePerRound   string
	BreakerCooldown     time.Duration
	CurveVirtualBase    string
	CurveVirtualToken   string
}

// Config holds replay configuration loaded from flags, env, or config file.
type Config struct {
	Engine            EngineConfig
	In                string
	Out               string
	Results           string
	Snapshot          string
	Checkpoint        string
	CheckpointEnabled bool
	BatchSize         uint64
	MaxRetries        int
	RetryBackoff      time.Duration
	StartTime         string
	PGDSN             string
	MetricsAddr       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(500),
		"out":                "./data/logs.jsonl",
		"results":            "./data/results.jsonl",
		"snapshot":           "./data/snapshot.json",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Engine:            engineConfig(v),
		In:                v.GetString("in"),
		Out:               v.GetString("out"),
		Results:           v.GetString("results"),
		Snapshot:          v.GetString("snapshot"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchSize:         v.GetUint64("batch-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		StartTime:         v.GetString("start-time"),
		PGDSN:             v.GetString("pg-dsn"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Engine   EngineConfig
	Snapshot string
	Path     []string
	Amount   string
	ExactOut bool
	Token    string
	LogLevel string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"snapshot":  "./data/snapshot.json",
		"log-level": "warn",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Engine:   engineConfig(v),
		Snapshot: v.GetString("snapshot"),
		Path:     getStringSlice(v, "path"),
		Amount:   v.GetString("amount"),
		ExactOut: v.GetBool("exact-out"),
		Token:    v.GetString("token"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

func engineConfig(v *viper.Viper) EngineConfig {
	return EngineConfig{
		Deployer:            v.GetString("deployer"),
		BaseAsset:           v.GetString("base-asset"),
		FeeToSetter:         v.GetString("fee-to-setter"),
		RouterOwner:         v.GetString("router-owner"),
		GraduationOwner:     v.GetString("graduation-owner"),
		GraduationThreshold: v.GetString("graduation-threshold"),
		MaxPriceChangeBps:   v.GetUint64("max-price-change-bps"),
		MaxVolumePerRound:   v.GetString("max-volume-per-round"),
		BreakerCooldown:     v.GetDuration("breaker-cooldown"),
		CurveVirtualBase:    v.GetString("curve-virtual-base"),
		CurveVirtualToken:   v.GetString("curve-virtual-token"),
	}
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LAUNCHPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-price-change-bps", uint64(5000))
	v.SetDefault("max-volume-per-round", "0")
	v.SetDefault("breaker-cooldown", time.Hour)
	v.SetDefault("curve-virtual-base", "30000000000000000000")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// ParseAmount parses a non-negative decimal integer. Empty input is zero.
func ParseAmount(name, input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", name, input)
	}
	return v, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
