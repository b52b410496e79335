package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/grouped"
	"github.com/vk/groupsched/internal/inmemoryschedule"
	"github.com/vk/groupsched/internal/orchestra"
	"github.com/vk/groupsched/internal/sim"
	"github.com/vk/groupsched/internal/telemetry"
)

// Run builds the node's schedule and either replays the configured
// simulation or keeps the maintenance loop running until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	em := a.newEmitter(ctx)
	defer func() {
		if err := em.Close(); err != nil {
			a.logger.Warn("Failed to close telemetry publisher.", "error", err)
		}
	}()

	a.store = inmemoryschedule.New()
	a.handler = grouped.NewHandler(a.self, a.params)
	a.rules = grouped.NewRules(a.handler, telemetry.Observe(a.store, em))

	rules := make([]orchestra.Rule, 0, len(a.rules)+1)
	for _, r := range a.rules {
		rules = append(rules, r)
	}
	rules = append(rules, a.handler)
	a.dispatcher = orchestra.New(rules...)

	if err := a.dispatcher.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize schedule: %w", err)
	}
	a.logger.Info("Schedule initialized.",
		"node", a.self,
		"group", a.handler.GroupOf(a.self),
		"rules", a.dispatcher.Rules(),
		"period", a.params.Period(),
		"run_id", em.RunID().String(),
	)

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	if a.model.Simulation == nil {
		a.logger.Info("No simulation configured, running maintenance until stopped.")
		return a.dispatcher.RunMaintenance(ctx, a.params.MaintainInterval)
	}

	a.logger.Info("🚀 Starting simulation...", "phases", len(a.model.Simulation.Phases))
	report, err := sim.New(a.dispatcher, a.handler, a.rules, em).Run(ctx, a.model.Simulation)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	a.report = report
	a.logger.Info("🏁 Simulation finished.", "phases", len(report.Phases), "link_updates", a.store.Updates())

	if a.appConfig.ReportPath != "" {
		if err := writeReport(a.appConfig.ReportPath, report); err != nil {
			return err
		}
		a.logger.Info("Report written.", "path", a.appConfig.ReportPath)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// newEmitter connects the telemetry publisher when one is configured. A
// collector that cannot be reached only costs the events.
func (a *App) newEmitter(ctx context.Context) *telemetry.Emitter {
	url, namespace := a.appConfig.TelemetryURL, "/"
	if t := a.model.Telemetry; t != nil {
		if url == "" {
			url = t.SocketIOURL
		}
		namespace = t.Namespace
	}
	if url == "" {
		return telemetry.NewEmitter(nil, a.self)
	}

	pub, err := telemetry.DialSocketIO(ctx, url, namespace)
	if err != nil {
		a.logger.Warn("Telemetry disabled.", "url", url, "error", err)
		return telemetry.NewEmitter(nil, a.self)
	}
	return telemetry.NewEmitter(pub, a.self)
}

func writeReport(path string, report *sim.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
