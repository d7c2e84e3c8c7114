package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vinculobrasil/flowbot"
	"github.com/vinculobrasil/flowbot/internal/config"
	"github.com/vinculobrasil/flowbot/pkg/adapters/file"
	"github.com/vinculobrasil/flowbot/pkg/adapters/llm"
	"github.com/vinculobrasil/flowbot/pkg/adapters/memory"
	"github.com/vinculobrasil/flowbot/pkg/adapters/redis"
	"github.com/vinculobrasil/flowbot/pkg/adapters/simulated"
	"github.com/vinculobrasil/flowbot/pkg/adapters/webhook"
	"github.com/vinculobrasil/flowbot/pkg/observability"
	"github.com/vinculobrasil/flowbot/pkg/persistence/middleware"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// app is the wired engine plus what must be released on exit.
type app struct {
	engine  *flowbot.Engine
	metrics *observability.Metrics
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newApp wires the engine from configuration. simulatedIntegrations swaps
// every collaborator except completion and webhooks for in-memory fakes.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, simulatedIntegrations bool) (*app, error) {
	a := &app{metrics: observability.NewMetrics()}

	loader, err := file.NewLoader(cfg.Flows.Dir, file.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	store, locker, err := a.buildStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	collab, err := buildCollaborators(ctx, cfg, logger, simulatedIntegrations)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []flowbot.Option{
		flowbot.WithLoader(loader),
		flowbot.WithStore(store),
		flowbot.WithLogger(logger),
		flowbot.WithCollaborators(collab),
		flowbot.WithLifecycleHooks(observability.Combine(
			observability.LoggingHooks(logger),
			a.metrics.Hooks(),
		)),
		flowbot.WithMaxSteps(cfg.Engine.MaxSteps),
		flowbot.WithCallTimeout(cfg.Engine.CallTimeout),
		flowbot.WithStrictRouting(cfg.Engine.StrictRouting),
		flowbot.WithDefaultFlow(cfg.Flows.DefaultFlow),
	}
	if locker != nil {
		opts = append(opts, flowbot.WithLocker(locker), flowbot.WithLockTTL(cfg.Store.Redis.LockTTL))
	}
	if cfg.Engine.ErrorMessage != "" {
		opts = append(opts, flowbot.WithErrorMessage(cfg.Engine.ErrorMessage))
	}

	a.engine, err = flowbot.New(cfg.Flows.Dir, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildStore(ctx context.Context, cfg *config.Config) (ports.StateStore, ports.DistributedLocker, error) {
	var (
		store  ports.StateStore
		locker ports.DistributedLocker
	)
	switch cfg.Store.Driver {
	case config.StoreFile:
		store = file.NewStore(cfg.Store.Path)
	case config.StoreRedis:
		rc := cfg.Store.Redis
		rs := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		a.closers = append(a.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis unavailable at %s: %w", rc.Addr, err)
		}
		if rc.Lock {
			locker = redis.NewLocker(rs.Client(), rc.Prefix)
		}
		store = rs
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.Privacy.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Privacy.PIIPatterns)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, pii)
	}
	key, err := cfg.Privacy.Key()
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), locker, nil
}

func buildCollaborators(ctx context.Context, cfg *config.Config, logger *slog.Logger, simulatedIntegrations bool) (ports.Collaborators, error) {
	var collab ports.Collaborators
	if simulatedIntegrations {
		collab = simulated.Collaborators(logger, simulated.DemoContracts()...)
	}
	collab.Webhooks = webhook.New(webhook.WithUserAgent("flowbot/" + flowbot.Version))

	if cfg.LLM.Enabled() {
		completion, err := llm.New(ctx, llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return collab, fmt.Errorf("failed to configure llm: %w", err)
		}
		collab.Completion = completion
	}
	return collab, nil
}
