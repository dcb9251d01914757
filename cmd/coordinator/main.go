// Command coordinator runs the Fleet Coordinator, the GCS Broadcaster, and
// (when enabled) the Satellite Relay in one process, grounded in
// cmd/server/main.go's config-load/logger/dependency-wire/run sequence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/coordinator"
	"github.com/skyward-ops/mobfleet/internal/errs"
	"github.com/skyward-ops/mobfleet/internal/gcs"
	"github.com/skyward-ops/mobfleet/internal/metrics"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/relay"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coordinator:", err)
		return 1
	}

	logger := obslog.New(cfg.Logging.Format, cfg.Logging.Level)
	metricsReg := metrics.New()
	mqttBus := bus.NewMQTT(cfg.MQTT.Addr(), "coordinator", logger)

	grid := searchgrid.New(searchgrid.Config{
		GridSize: cfg.ProbSearch.GridSize, SearchAreaSizeM: cfg.ProbSearch.SearchAreaSizeM,
		SearchAltitude: cfg.ProbSearch.SearchAltitude, RMax: cfg.ProbSearch.RMax,
		HRef: cfg.ProbSearch.HRef, MissProbability: cfg.ProbSearch.MissProbability,
		DriftXMS: cfg.ProbSearch.DriftXMS, DriftYMS: cfg.ProbSearch.DriftYMS,
	}, searchgrid.Area(cfg.Search.Area), logger)

	// gcs.Server and coordinator.Coordinator reference each other (the GCS
	// needs a CommandSink, the Coordinator needs a Broadcaster): build the
	// GCS server first with no sink, then attach the Coordinator once it
	// exists.
	gcsServer := gcs.New(cfg.GCS, nil, logger, metricsReg)

	coord := coordinator.New(coordinator.Deps{
		Bus: mqttBus, Grid: grid, Config: cfg, Logger: logger,
		Metrics: metricsReg, Broadcaster: gcsServer,
	})
	gcsServer.SetSink(coord)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return gcsServer.Run(gctx) })
	if cfg.Satellite.Enabled {
		g.Go(func() error {
			r := relay.New(bus.NewMQTT(cfg.MQTT.Addr(), "satellite-relay", logger), cfg.Satellite.UplinkPrefix, logger)
			return r.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		var bindErr *errs.FatalBindError
		if errors.As(err, &bindErr) {
			fmt.Fprintln(os.Stderr, "coordinator:", err)
			return 1
		}
		logger.Error("coordinator exited with error", "error", err)
		return 1
	}
	return 0
}
