// Package agent implements the Drone Mission Agent: one process per drone,
// owning that drone's state machine, flight-controller handle, optional
// detector, and bus connection, grounded in
// original_source/drone/core/drone.py and original_source/drone/core/mission.py's
// event-loop/behavior split, and in the teacher's internal/services layering
// for how a dependency bundle is threaded into long-running tasks.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/detect"
	"github.com/skyward-ops/mobfleet/internal/errs"
	"github.com/skyward-ops/mobfleet/internal/flightctl"
	"github.com/skyward-ops/mobfleet/internal/metrics"
	"github.com/skyward-ops/mobfleet/internal/missionfsm"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
	"github.com/skyward-ops/mobfleet/internal/telemetrylog"
)

const healthTickInterval = 1 * time.Second

// Agent hosts one drone's mission state machine and drives it from bus
// events, a health monitor, and a per-phase entry behavior.
type Agent struct {
	droneID    string
	role       model.Role
	bus        bus.Bus
	controller flightctl.Controller
	detector   detect.Detector
	machine    *missionfsm.Machine
	grid       *searchgrid.Grid // local gossip-mode grid; nil when the agent defers to the centralized coordinator

	health  config.HealthConfig
	search  config.SearchStrategyConfig
	flight  config.FlightStrategyConfig
	probCfg config.ProbSearchConfig
	lawn    config.LawnmowerConfig
	orbit   config.OrbitConfig
	hover   config.PrecisionHoverConfig

	logger  *slog.Logger
	metrics *metrics.Registry

	// telemetryLog is nil unless the operator opted into CSV snapshot
	// persistence (spec.md §4.4 bullet 5, "optionally persist a snapshot").
	telemetryLog *telemetrylog.Logger

	// home is the launch position every RTL-style transition returns to.
	home model.Position

	// pendingTarget is the world position carried from target_sighted
	// through confirm/reject/deliver; set by the search behavior, read by
	// confirm handling and the delivering behavior.
	pendingTarget model.Position

	// lastDetections is read by the health monitor for telemetry snapshot
	// persistence and written by the search behaviors; guarded by detMu
	// since the two run on different goroutines.
	detMu          sync.Mutex
	lastDetections []model.Detection

	phaseCh chan model.Phase
}

func (a *Agent) setLastDetections(d []model.Detection) {
	a.detMu.Lock()
	a.lastDetections = d
	a.detMu.Unlock()
}

func (a *Agent) getLastDetections() []model.Detection {
	a.detMu.Lock()
	defer a.detMu.Unlock()
	return a.lastDetections
}

// Deps bundles everything an Agent needs besides its own identity.
type Deps struct {
	Bus        bus.Bus
	Controller flightctl.Controller
	Detector   detect.Detector
	Grid       *searchgrid.Grid
	Logger     *slog.Logger
	Metrics    *metrics.Registry
	Health     config.HealthConfig
	Search     config.SearchStrategyConfig
	Flight     config.FlightStrategyConfig
	ProbSearch config.ProbSearchConfig
	Lawnmower  config.LawnmowerConfig
	Orbit      config.OrbitConfig
	Hover      config.PrecisionHoverConfig

	// TelemetryLog is optional; when nil, health ticks are not persisted to CSV.
	TelemetryLog *telemetrylog.Logger
}

// New constructs an Agent in its initial IDLE state. The returned Agent does
// not connect to the bus until Run is called.
func New(droneID string, role model.Role, deps Deps) *Agent {
	a := &Agent{
		droneID:      droneID,
		role:         role,
		bus:          deps.Bus,
		controller:   deps.Controller,
		detector:     deps.Detector,
		grid:         deps.Grid,
		health:       deps.Health,
		search:       deps.Search,
		flight:       deps.Flight,
		probCfg:      deps.ProbSearch,
		lawn:         deps.Lawnmower,
		orbit:        deps.Orbit,
		hover:        deps.Hover,
		logger:       obslog.ForDrone(deps.Logger, droneID),
		metrics:      deps.Metrics,
		telemetryLog: deps.TelemetryLog,
		phaseCh:      make(chan model.Phase, 8),
	}
	a.machine = missionfsm.New(droneID, role, a.onTransition)
	return a
}

func (a *Agent) onTransition(old, new model.Phase, trigger string) {
	a.logger.Info("phase transition", "trigger", trigger, "from", old, "to", new)
	if a.metrics != nil {
		a.metrics.PhaseTransitions.WithLabelValues(trigger, string(new)).Inc()
	}
	payload, _ := json.Marshal(map[string]any{
		"state": new, "drone_id": a.droneID, "role": a.role,
	})
	if err := a.bus.Publish(fmt.Sprintf("fleet/state/%s", a.droneID), payload, false); err != nil {
		a.logger.Warn("failed to publish state transition", "error", err)
	}
	select {
	case a.phaseCh <- new:
	default:
		a.logger.Warn("phase notification channel full, behavior supervisor may be lagging")
	}
}

// Run connects the bus and the flight controller, announces fleet/connect,
// and runs the agent's three concurrent tasks (bus listener, health monitor,
// phase-entry behavior supervisor) until ctx is cancelled or one task
// returns a fatal error.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.bus.Connect(ctx); err != nil {
		return &errs.FatalBindError{Reason: err.Error()}
	}
	if err := a.controller.Connect(ctx); err != nil {
		a.bus.Disconnect()
		return &errs.FatalBindError{Reason: err.Error()}
	}

	a.home = a.controller.Telemetry().Position

	payload, _ := json.Marshal(map[string]any{"drone_id": a.droneID, "role": a.role})
	if err := a.bus.Publish("fleet/connect", payload, true); err != nil {
		a.logger.Warn("failed to publish fleet/connect", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listen(gctx) })
	g.Go(func() error { return a.healthMonitor(gctx) })
	g.Go(func() error { return a.behaviorSupervisor(gctx) })

	err := g.Wait()

	a.controller.Disconnect(context.Background())
	offline, _ := json.Marshal(map[string]any{"state": "OFFLINE", "drone_id": a.droneID, "role": a.role})
	a.bus.Publish(fmt.Sprintf("fleet/state/%s", a.droneID), offline, false)
	a.bus.Disconnect()

	return err
}
