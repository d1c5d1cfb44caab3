package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"launchpool/internal/config"
	"launchpool/internal/engine"
	"launchpool/internal/ledger"
	"launchpool/internal/replay"
	"launchpool/internal/storage"
)

type routeQuote struct {
	Path     []string `json:"path"`
	ExactOut bool     `json:"exact_out"`
	Amounts  []string `json:"amounts"`
}

type graduationQuote struct {
	Token         string `json:"token"`
	IsGraduated   bool   `json:"is_graduated"`
	CanGraduate   bool   `json:"can_graduate"`
	CurrentSupply string `json:"current_supply"`
	Threshold     string `json:"threshold"`
	Pool          string `json:"pool,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engineCfg, err := buildEngineConfig(cfg.Engine)
	if err != nil {
		return err
	}
	snap, ok, err := storage.LoadSnapshot(cfg.Snapshot)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %s not found", cfg.Snapshot)
	}

	eng, err := engine.New(engineCfg, ledger.NewManualClock(time.Unix(0, 0).UTC(), 0), logger, nil)
	if err != nil {
		return err
	}
	if err := eng.Restore(snap); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if cfg.Token != "" {
		token, err := parseAddress("token", cfg.Token)
		if err != nil {
			return err
		}
		out, err := graduationStatus(eng, token)
		if err != nil {
			return err
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	if len(cfg.Path) == 0 {
		if cfg.Token == "" {
			return fmt.Errorf("either path or token is required")
		}
		return nil
	}

	path, err := replay.ParseAddresses(cfg.Path)
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount("amount", cfg.Amount)
	if err != nil {
		return err
	}

	quote := eng.Router.GetAmountsOut
	if cfg.ExactOut {
		quote = eng.Router.GetAmountsIn
	}
	amounts, err := quote(amount, path)
	if err != nil {
		return err
	}

	out := routeQuote{ExactOut: cfg.ExactOut}
	for _, p := range path {
		out.Path = append(out.Path, p.Hex())
	}
	for _, a := range amounts {
		out.Amounts = append(out.Amounts, a.String())
	}
	logger.Debug("route quoted", zap.Strings("path", out.Path), zap.Strings("amounts", out.Amounts))
	return enc.Encode(out)
}

func graduationStatus(eng *engine.Engine, token common.Address) (graduationQuote, error) {
	status, err := eng.Graduation.GetGraduationStatus(token)
	if err != nil {
		return graduationQuote{}, err
	}
	can, err := eng.Graduation.CanGraduate(token)
	if err != nil {
		return graduationQuote{}, err
	}
	out := graduationQuote{
		Token:         token.Hex(),
		IsGraduated:   status.IsGraduated,
		CanGraduate:   can,
		CurrentSupply: status.CurrentSupply.String(),
		Threshold:     status.Threshold.String(),
	}
	if status.IsGraduated {
		out.Pool = status.Pool.Hex()
	}
	return out, nil
}
