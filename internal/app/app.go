// Package app wires the scheduler's components together.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/api"
	"github.com/sweetwork/svc-scheduler/internal/clock/system"
	"github.com/sweetwork/svc-scheduler/internal/config"
	"github.com/sweetwork/svc-scheduler/internal/controller"
	"github.com/sweetwork/svc-scheduler/internal/duequeue"
	"github.com/sweetwork/svc-scheduler/internal/feedindex"
	"github.com/sweetwork/svc-scheduler/internal/loop"
	"github.com/sweetwork/svc-scheduler/internal/reports"
	redisstore "github.com/sweetwork/svc-scheduler/internal/store/redis"
	"github.com/sweetwork/svc-scheduler/internal/timeline"
	"github.com/sweetwork/svc-scheduler/internal/topics"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Store  *redisstore.Store
	SQL    *topics.SQLStore
	Server *api.Server
	Loop   *loop.Loop
}

// New connects to Redis and Postgres and builds the component graph.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := redisstore.New(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	sqlStore, err := topics.NewSQLStore(ctx, cfg.DB.DSN)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	clk := system.New()
	index := feedindex.New(store, clk, logger)
	queue := duequeue.New(store)
	tl := timeline.New(store, clk, logger)

	manager := topics.NewManager(sqlStore, store, index, clk, logger)
	processor := reports.NewProcessor(store, tl, queue, clk, logger)
	server := api.NewServer(manager, processor, logger)

	app := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		SQL:    sqlStore,
		Server: server,
	}

	if cfg.Scheduler.Enabled {
		searcher, err := controller.New(controller.Config{
			Host:       cfg.Controller.Host,
			Passphrase: cfg.Controller.Passphrase,
			Timeout:    cfg.ControllerTimeout(),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("build controller client: %w", err)
		}
		app.Loop = loop.New(store, queue, tl, searcher, clk, loop.Config{
			TickInterval:  cfg.TickInterval(),
			SearchTimeout: cfg.ControllerTimeout(),
			ServiceName:   cfg.Scheduler.ServiceName,
		}, logger)
	}

	return app, nil
}

// Close releases external connections.
func (a *App) Close() {
	if a.SQL != nil {
		a.SQL.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("close redis", zap.Error(err))
		}
	}
}
