package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/grouped"
	"github.com/vk/groupsched/internal/inmemoryschedule"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/orchestra"
	"github.com/vk/groupsched/internal/sim"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	appConfig  *Config
	model      *config.Model
	self       linkaddr.Address
	params     grouped.Params
	httpServer *http.Server

	// Set by Run.
	store      *inmemoryschedule.Store
	handler    *grouped.Handler
	rules      []*grouped.Rule
	dispatcher *orchestra.Dispatcher
	report     *sim.Report
}

// NewApp is the constructor for the main application. It loads and validates
// the configuration and panics when that fails, since nothing can run
// without it.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	self, err := linkaddr.Parse(model.Node.Address)
	if err != nil {
		panic(fmt.Errorf("invalid node address: %w", err))
	}

	return &App{
		ctx:       ctx,
		outW:      outW,
		logger:    logger,
		appConfig: appConfig,
		model:     model,
		self:      self,
		params:    schedulerParams(model.Scheduler, appConfig.MaintainInterval),
	}
}

// Model returns the loaded configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Handler returns the grouped handler built by Run, or nil before.
func (a *App) Handler() *grouped.Handler {
	return a.handler
}

// Report returns the simulation report of the last Run, or nil.
func (a *App) Report() *sim.Report {
	return a.report
}
