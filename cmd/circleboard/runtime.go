package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/circleboard/pkg/circleci"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/ethpandaops/circleboard/pkg/store"
	"github.com/sirupsen/logrus"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg   *config.Config
	store store.Store
	svc   service.Service
}

// loadConfig loads and validates the configuration and applies the
// configured log level unless --log-level was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if logLevel == "" && cfg.Global.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w",
				cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// newRuntime loads the configuration, starts the store and wires the
// CircleCI client into the project service.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st := store.NewStore(log, &cfg.Storage)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	tokens := service.NewTokens(st, cfg.CircleCI.Token)
	client := circleci.NewClient(log, &cfg.CircleCI, tokens.Token)
	svc := service.NewService(log, &cfg.Sync, st, client, tokens)

	return &runtime{cfg: cfg, store: st, svc: svc}, nil
}

func (r *runtime) close() {
	if err := r.store.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop store")
	}
}

// commandTimeout bounds one-shot commands.
const commandTimeout = 10 * time.Minute
