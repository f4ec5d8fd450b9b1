package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/config"
	"github.com/openrack/trayctl/pkg/device"
	"github.com/openrack/trayctl/pkg/stores"
	"github.com/openrack/trayctl/pkg/telemetry"
)

// app bundles everything a device-facing command needs: the controller
// for the selected device, the telemetry stack, and an open audit run.
type app struct {
	fleet      *config.Fleet
	controller *device.Controller
	store      *stores.AuditStore
	metrics    *telemetry.Metrics
	events     *telemetry.EventPublisher
	tracer     *telemetry.Tracer
	runID      string
}

// newApp wires the stack from the global flags. Every error here is a
// configuration problem the operator must fix before anything runs.
func newApp(ctx context.Context) (*app, error) {
	telCfg := telemetry.DefaultConfig()
	telCfg.Logging.Level = logLevel
	telCfg.Logging.Format = logFormat
	telCfg.Metrics.ListenAddress = metricsListen
	if traceExporter != "" {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = traceExporter
	}
	if err := telCfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, err
	}
	log.Logger = logger

	fleet, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if deviceName == "" {
		return nil, fmt.Errorf("--device is required")
	}
	dev := fleet.Device(deviceName)
	if dev == nil {
		return nil, fmt.Errorf("device %q not found in %s", deviceName, configPath)
	}

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, err
	}
	if err := metrics.Serve(); err != nil {
		return nil, err
	}

	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion, telCfg.Environment)
	if err != nil {
		return nil, err
	}

	events := telemetry.NewEventPublisher(telCfg.Events)
	events.Subscribe(func(ev telemetry.Event) {
		log.Debug().
			Str("type", ev.Type).
			Str("device", ev.Device).
			Str("operation", ev.Operation).
			Str("level", ev.Level).
			Msg(ev.Message)
	})

	store, err := stores.NewAuditStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	controller, err := device.NewController(*dev, fleet.Defaults, metrics, events)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	runID, err := store.StartRun(ctx, dev.Name)
	if err != nil {
		controller.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{
		fleet:      fleet,
		controller: controller,
		store:      store,
		metrics:    metrics,
		events:     events,
		tracer:     tracer,
		runID:      runID,
	}, nil
}

// runOperation executes one public operation under a span, records it in
// the audit run, and converts the boolean contract into the command exit
// status.
func (a *app) runOperation(ctx context.Context, name, detail string, op func(ctx context.Context) (bool, error)) error {
	ctx, span := a.tracer.StartOperationSpan(ctx, a.controller.Name(), name)
	start := time.Now()

	ok, err := op(ctx)

	telemetry.RecordOutcome(span, ok, err)
	span.End()

	rec := &stores.OperationRecord{
		RunID:      a.runID,
		Device:     a.controller.Name(),
		Name:       name,
		OK:         ok && err == nil,
		Detail:     detail,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	if recErr := a.store.RecordOperation(ctx, rec); recErr != nil {
		log.Warn().Err(recErr).Msg("failed to record operation in audit store")
	}

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s failed on %s", name, a.controller.Name())
	}
	log.Info().Str("operation", name).Str("device", a.controller.Name()).Msg("operation succeeded")
	return nil
}

// close finishes the audit run and releases every resource. cmdErr
// decides the run's terminal status.
func (a *app) close(ctx context.Context, cmdErr error) {
	status := stores.RunStatusCompleted
	var errMsg *string
	if cmdErr != nil {
		status = stores.RunStatusFailed
		msg := cmdErr.Error()
		errMsg = &msg
	}
	if ctx.Err() != nil {
		status = stores.RunStatusCancelled
	}
	if err := a.store.FinishRun(context.WithoutCancel(ctx), a.runID, status, errMsg); err != nil {
		log.Warn().Err(err).Msg("failed to finish audit run")
	}

	a.controller.Close()
	a.events.Close()
	_ = a.metrics.Close()
	_ = a.tracer.Shutdown(context.WithoutCancel(ctx))
	_ = a.store.Close()
}
