package main

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/infra/credentials"
	"storyboardgen/internal/usage"
)

const commandTimeout = 30 * time.Second

type planSetter interface {
	SetPlan(ctx context.Context, userID string, plan domain.PlanType, reset bool) (domain.MonthlyUsage, error)
}

type credentialSetter interface {
	Set(ctx context.Context, provider, key string) error
}

type commandContext struct {
	configOnce sync.Once
	config     *infra.Config
	configErr  error

	loadConfig  func() (*infra.Config, error)
	plans       func(ctx context.Context) (planSetter, func(), error)
	credentials func(ctx context.Context) (credentialSetter, func(), error)
	migrate     func(ctx context.Context, databaseURL string, logger zerolog.Logger) (int, error)
}

func newCommandContext() *commandContext {
	c := &commandContext{
		loadConfig: infra.LoadConfig,
		migrate:    infra.Migrate,
	}
	c.plans = func(ctx context.Context) (planSetter, func(), error) {
		runner, logger, closeFn, err := c.runner(ctx)
		if err != nil {
			return nil, nil, err
		}
		svc := &usage.Service{
			Ledger:        usage.NewLedger(runner, logger),
			Subscriptions: usage.NewSubscriptions(runner),
		}
		return svc, closeFn, nil
	}
	c.credentials = func(ctx context.Context) (credentialSetter, func(), error) {
		runner, _, closeFn, err := c.runner(ctx)
		if err != nil {
			return nil, nil, err
		}
		return credentials.NewStore(runner), closeFn, nil
	}
	return c
}

func (c *commandContext) ensureConfig() (*infra.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = c.loadConfig()
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() zerolog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return infra.NewLogger("development")
	}
	return infra.NewLogger(cfg.AppEnv)
}

func (c *commandContext) runner(ctx context.Context) (*infra.SQLRunner, zerolog.Logger, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, logger, nil, err
	}
	return infra.NewSQLRunner(pool, logger), logger, closePool(pool), nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}
