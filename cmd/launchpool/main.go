package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"launchpool/internal/amm"
	"launchpool/internal/config"
	"launchpool/internal/curve"
	"launchpool/internal/engine"
)

func main() {
	root := &cobra.Command{
		Use:          "launchpool",
		Short:        "Deterministic AMM and bonding-curve graduation engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply an operation script to the engine",
		RunE:  runReplay,
	}

	addEngineFlags(replayCmd.Flags())
	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("out", "./data/logs.jsonl", "output event logs JSONL")
	replayCmd.Flags().String("results", "./data/results.jsonl", "output operation results JSONL")
	replayCmd.Flags().String("snapshot", "./data/snapshot.json", "engine snapshot path")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for storage writes")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("start-time", "", "clock start for operations without timestamps (unix seconds or RFC3339)")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	replayCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode engine event logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "./data/logs.jsonl", "input event logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().StringSlice("event", nil, "only keep these event names (comma-separated)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a route or graduation status against a snapshot",
		RunE:  runQuote,
	}

	addEngineFlags(quoteCmd.Flags())
	quoteCmd.Flags().String("snapshot", "./data/snapshot.json", "engine snapshot path")
	quoteCmd.Flags().StringSlice("path", nil, "token route (comma-separated)")
	quoteCmd.Flags().String("amount", "", "input amount, or output amount with --exact-out")
	quoteCmd.Flags().Bool("exact-out", false, "quote the input needed for an exact output")
	quoteCmd.Flags().String("token", "", "report graduation status for this token")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(flags *pflag.FlagSet) {
	flags.String("deployer", "", "deployer address; component addresses derive from it")
	flags.String("base-asset", "", "base asset address")
	flags.String("fee-to-setter", "", "registry fee-to setter and pool guardian (default deployer)")
	flags.String("router-owner", "", "router owner (default deployer)")
	flags.String("graduation-owner", "", "graduation manager owner (default deployer)")
	flags.String("graduation-threshold", "", "curve supply a token must exceed to graduate")
	flags.Uint64("max-price-change-bps", 5000, "maximum price change per swap in basis points, 0 disables")
	flags.String("max-volume-per-round", "0", "maximum input volume per pool per round, 0 disables")
	flags.Duration("breaker-cooldown", time.Hour, "circuit breaker cooldown")
	flags.String("curve-virtual-base", "30000000000000000000", "bonding curve virtual base reserve")
	flags.String("curve-virtual-token", "", "bonding curve virtual token reserve (default launch supply)")
}

func buildEngineConfig(cfg config.EngineConfig) (engine.Config, error) {
	var out engine.Config
	var err error

	addrs := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"deployer", cfg.Deployer, &out.Deployer},
		{"base-asset", cfg.BaseAsset, &out.BaseAsset},
		{"fee-to-setter", cfg.FeeToSetter, &out.FeeToSetter},
		{"router-owner", cfg.RouterOwner, &out.RouterOwner},
		{"graduation-owner", cfg.GraduationOwner, &out.GraduationOwner},
	}
	for _, a := range addrs {
		if *a.dst, err = parseAddress(a.name, a.value); err != nil {
			return engine.Config{}, err
		}
	}

	if out.Threshold, err = config.ParseAmount("graduation-threshold", cfg.GraduationThreshold); err != nil {
		return engine.Config{}, err
	}
	maxVolume, err := config.ParseAmount("max-volume-per-round", cfg.MaxVolumePerRound)
	if err != nil {
		return engine.Config{}, err
	}
	if maxVolume.Sign() == 0 {
		maxVolume = nil
	}
	out.Pool = amm.PoolParams{
		MaxPriceChangeBps:      cfg.MaxPriceChangeBps,
		MaxVolumePerRound:      maxVolume,
		CircuitBreakerCooldown: cfg.BreakerCooldown,
	}

	var params curve.Params
	if params.VirtualBase, err = config.ParseAmount("curve-virtual-base", cfg.CurveVirtualBase); err != nil {
		return engine.Config{}, err
	}
	if params.VirtualToken, err = config.ParseAmount("curve-virtual-token", cfg.CurveVirtualToken); err != nil {
		return engine.Config{}, err
	}
	out.Curve = params
	return out, nil
}

func parseAddress(name, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, input)
	}
	return common.HexToAddress(input), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
