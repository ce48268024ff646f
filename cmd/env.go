package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellardesk/cellar-cli/internal/backfill"
	"github.com/cellardesk/cellar-cli/internal/pairing"
	"github.com/cellardesk/cellar-cli/internal/readiness"
	"github.com/cellardesk/cellar-cli/internal/store"
	"github.com/cellardesk/cellar-cli/pkg/sommelier"
)

// engineEnv bundles the wired engine for a command invocation.
type engineEnv struct {
	Store   store.Store
	Calc    *readiness.Calculator
	Orch    *backfill.Orchestrator
	Orderer *pairing.Orderer
}

// initEngine opens the configured store and wires the calculator,
// orchestrator and lineup orderer on top of it.
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := readiness.ValidateConfig(cfg.Readiness); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	calc := readiness.New(cfg.Readiness, readiness.NewEstimator())

	var profiles backfill.ProfileSource
	if cfg.Sommelier.Enabled && cfg.Sommelier.AnthropicKey != "" {
		profiles = sommelier.NewSource(
			sommelier.NewClient(cfg.Sommelier.AnthropicKey),
			cfg.Sommelier.Model,
			cfg.Sommelier.RequestsPerSec,
		)
		zap.L().Info("ai profile source enabled", zap.String("model", cfg.Sommelier.Model))
	}

	return &engineEnv{
		Store:   st,
		Calc:    calc,
		Orch:    backfill.New(st, st, calc, profiles, cfg.Backfill),
		Orderer: pairing.NewOrderer(pairing.NewScorer(), cfg.Pairing),
	}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	case "sqlite":
		return store.OpenSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *engineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
