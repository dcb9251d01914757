// Package coordinator implements the Fleet Coordinator from SPEC_FULL.md
// §4.5: the single process that holds the fleet roster, runs the central
// probability grid in centralized mode, and brokers operator commands from
// the GCS broadcaster onto the bus. Grounded in
// original_source/coordinator/fleet_coordinator.py for the handler/command
// split and in the teacher's internal/server dependency-bundle pattern for
// how the long-lived process threads its collaborators together.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/errs"
	"github.com/skyward-ops/mobfleet/internal/metrics"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
)

// Frame is an outbound message handed to the GCS broadcaster for fan-out to
// every connected WebSocket client.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster is the GCS Broadcaster's inbound face, as seen by the
// Coordinator. Implemented by *gcs.Server; kept as an interface here so this
// package never imports net/http or gorilla/websocket.
type Broadcaster interface {
	Broadcast(frame Frame)
	StartVideoStream(droneID string)
	StopVideoStream(droneID string)
}

// nullBroadcaster discards every frame; used when the Coordinator is
// constructed without a GCS server attached (e.g. in tests).
type nullBroadcaster struct{}

func (nullBroadcaster) Broadcast(Frame)         {}
func (nullBroadcaster) StartVideoStream(string) {}
func (nullBroadcaster) StopVideoStream(string)  {}

// Coordinator holds the fleet roster and, in centralized mode, the shared
// probability grid. Per spec.md §5's shared-resource policy, the roster and
// grid are mutated only from this type's own bus-handler and control-loop
// goroutines.
type Coordinator struct {
	mu     sync.Mutex
	roster map[string]*model.FleetVehicleRecord

	bus         bus.Bus
	grid        *searchgrid.Grid
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *metrics.Registry
	broadcaster Broadcaster

	assignedScout  string
	overwatchDrone string
	searchCancel   context.CancelFunc
	runCtx         context.Context
}

// Deps bundles a Coordinator's collaborators, mirroring agent.Deps.
type Deps struct {
	Bus         bus.Bus
	Grid        *searchgrid.Grid
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	Broadcaster Broadcaster
}

// New constructs a Coordinator with its roster seeded from cfg.Drones, every
// entry starting IDLE until its fleet/connect announcement arrives.
func New(deps Deps) *Coordinator {
	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = nullBroadcaster{}
	}
	c := &Coordinator{
		roster:      make(map[string]*model.FleetVehicleRecord, len(deps.Config.Drones)),
		bus:         deps.Bus,
		grid:        deps.Grid,
		cfg:         deps.Config,
		logger:      obslog.ForTopic(deps.Logger, "coordinator"),
		metrics:     deps.Metrics,
		broadcaster: broadcaster,
	}
	for _, d := range deps.Config.Drones {
		c.roster[d.ID] = &model.FleetVehicleRecord{DroneID: d.ID, Role: d.Role, Phase: model.PhaseIdle}
	}
	return c
}

// Run subscribes to the fleet topics and runs the bus listener and map
// evolution loop concurrently until ctx is cancelled. The search control loop
// is started and stopped dynamically by TriggerMOBMode, not here.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.bus.Connect(ctx); err != nil {
		return &errs.FatalBindError{Reason: err.Error()}
	}
	defer c.bus.Disconnect()

	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.listen(gctx) })
	g.Go(func() error { return c.evolveLoop(gctx) })

	return g.Wait()
}

func (c *Coordinator) listen(ctx context.Context) error {
	topics := []string{
		"fleet/connect",
		"fleet/telemetry/+",
		"fleet/state/+",
		"fleet/event/+",
	}
	chans := make([]<-chan bus.Message, 0, len(topics))
	for _, t := range topics {
		ch, err := c.bus.Subscribe(ctx, t)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
		chans = append(chans, ch)
	}

	merged := channerics.Merge(ctx.Done(), chans...)
	for msg := range channerics.OrDone(ctx.Done(), merged) {
		c.dispatch(msg)
	}
	return nil
}

func (c *Coordinator) dispatch(msg bus.Message) {
	if c.metrics != nil {
		c.metrics.BusMessagesTotal.WithLabelValues(msg.Topic).Inc()
	}
	switch {
	case msg.Topic == "fleet/connect":
		c.handleConnect(msg.Payload)
	case hasPrefix(msg.Topic, "fleet/telemetry/"):
		c.handleTelemetry(msg.Topic[len("fleet/telemetry/"):], msg.Payload)
	case hasPrefix(msg.Topic, "fleet/state/"):
		c.handleState(msg.Topic[len("fleet/state/"):], msg.Payload)
	case hasPrefix(msg.Topic, "fleet/event/"):
		id := msg.Topic[len("fleet/event/"):]
		if id == "target_found" || id == "confirmation" {
			return // not addressed to the coordinator; drone-to-drone/coord-to-drone topics
		}
		c.handleEvent(id, msg.Payload)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (c *Coordinator) evolveLoop(ctx context.Context) error {
	interval := time.Duration(c.cfg.ProbSearch.EvolveIntervalS * float64(time.Second))
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticks := channerics.NewTicker(ctx.Done(), interval)
	for range channerics.OrDone(ctx.Done(), ticks) {
		if c.grid == nil {
			continue
		}
		if c.anySearching() {
			c.mu.Lock()
			c.grid.EvolveMap(c.cfg.ProbSearch.EvolveIntervalS)
			c.mu.Unlock()
		}
		if c.metrics != nil {
			c.mu.Lock()
			sum := c.grid.Sum()
			c.mu.Unlock()
			c.metrics.SearchGridSum.Set(sum)
		}
	}
	return nil
}

func (c *Coordinator) anySearching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.roster {
		if isSearchingPhase(rec.Phase) {
			return true
		}
	}
	return false
}

func isSearchingPhase(p model.Phase) bool {
	return p == model.PhaseRoleSearchPrimary || p == model.PhaseRoleSearchAssist
}

func (c *Coordinator) publishCommand(droneID, command string, fields map[string]any) {
	body := map[string]any{"command": command}
	for k, v := range fields {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("failed to marshal command", "drone_id", droneID, "command", command, "error", err)
		return
	}
	if err := c.bus.Publish(fmt.Sprintf("drone/command/%s", droneID), payload, false); err != nil {
		c.logger.Warn("failed to publish command", "drone_id", droneID, "command", command, "error", err)
	}
}

func (c *Coordinator) publishMissionStart(droneID, missionType string, pos *model.Position) {
	body := map[string]any{"type": missionType}
	if pos != nil {
		body["position"] = *pos
	}
	payload, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("failed to marshal mission/start", "error", err)
		return
	}
	if err := c.bus.Publish(fmt.Sprintf("drone/command/%s", droneID), withCommand(payload, "START_MISSION"), false); err != nil {
		c.logger.Warn("failed to publish START_MISSION", "drone_id", droneID, "error", err)
	}
}

// withCommand re-marshals a mission/start body with the command envelope the
// drone/command/<id> topic expects (spec.md §6's START_MISSION{type} entry).
func withCommand(body []byte, command string) []byte {
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	m["command"] = command
	out, _ := json.Marshal(m)
	return out
}
