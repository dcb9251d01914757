// Command droneagent runs one Drone Mission Agent process, grounded in
// cmd/server/main.go's config-load/logger/dependency-wire/run sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyward-ops/mobfleet/internal/agent"
	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/detect"
	"github.com/skyward-ops/mobfleet/internal/errs"
	"github.com/skyward-ops/mobfleet/internal/flightctl"
	"github.com/skyward-ops/mobfleet/internal/metrics"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
	"github.com/skyward-ops/mobfleet/internal/telemetrylog"
)

func main() {
	os.Exit(run())
}

func run() int {
	id := flag.String("id", "", "drone id, must match a configured drones[] entry")
	snapshotDir := flag.String("snapshot-dir", "", "optional directory for per-drone CSV telemetry snapshots")
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "droneagent: --id is required")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "droneagent:", err)
		return 1
	}

	drone, err := cfg.FindDrone(*id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "droneagent:", err)
		return 1
	}

	logger := obslog.New(cfg.Logging.Format, cfg.Logging.Level)
	metricsReg := metrics.New()

	controller, err := newController(*drone, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "droneagent:", err)
		return 1
	}

	var grid *searchgrid.Grid
	if drone.Role == model.RoleScout && cfg.Search.Algorithm == "prob_search" {
		grid = searchgrid.New(searchgrid.Config{
			GridSize: cfg.ProbSearch.GridSize, SearchAreaSizeM: cfg.ProbSearch.SearchAreaSizeM,
			SearchAltitude: cfg.ProbSearch.SearchAltitude, RMax: cfg.ProbSearch.RMax,
			HRef: cfg.ProbSearch.HRef, MissProbability: cfg.ProbSearch.MissProbability,
			DriftXMS: cfg.ProbSearch.DriftXMS, DriftYMS: cfg.ProbSearch.DriftYMS,
		}, searchgrid.Area(cfg.Search.Area), logger)
	}

	var telemetryLog *telemetrylog.Logger
	if *snapshotDir != "" {
		telemetryLog, err = telemetrylog.Open(*snapshotDir, time.Now())
		if err != nil {
			fmt.Fprintln(os.Stderr, "droneagent:", err)
			return 1
		}
		defer telemetryLog.Close()
	}

	mqttBus := bus.NewMQTT(cfg.MQTT.Addr(), *id, logger)

	a := agent.New(*id, drone.Role, agent.Deps{
		Bus:          mqttBus,
		Controller:   controller,
		Detector:     detect.NewSimulated(0.3, int64(len(*id))),
		Grid:         grid,
		Logger:       logger,
		Metrics:      metricsReg,
		Health:       cfg.Health,
		Search:       cfg.Search,
		Flight:       cfg.Flight,
		ProbSearch:   cfg.ProbSearch,
		Lawnmower:    cfg.Lawnmower,
		Orbit:        cfg.Orbit,
		Hover:        cfg.PrecisionHover,
		TelemetryLog: telemetryLog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		var bindErr *errs.FatalBindError
		if errors.As(err, &bindErr) {
			fmt.Fprintln(os.Stderr, "droneagent:", err)
			return 1
		}
		logger.Error("agent exited with error", "error", err)
		return 1
	}
	return 0
}

func newController(drone config.DroneConfig, logger *slog.Logger) (flightctl.Controller, error) {
	switch drone.Type {
	case config.DroneReal:
		return flightctl.NewMAVLinkController(flightctl.Config{
			Port: drone.Port, BaudRate: drone.BaudRate, Logger: logger,
		})
	default:
		return flightctl.NewSimulated(drone.ID, logger), nil
	}
}
