package coordinator

import (
	"context"
	"time"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// startSearchLoop cancels any previously running search control loop and
// starts a new one tasking droneID, per spec.md §4.5's "cancel+restart the
// search control loop" for TRIGGER_MOB_MODE.
func (c *Coordinator) startSearchLoop(droneID string) {
	c.mu.Lock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	base := c.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	c.searchCancel = cancel
	c.mu.Unlock()

	go c.searchLoop(ctx, droneID)
}

// searchLoop implements spec.md §4.5's probabilistic search control loop:
// while droneID is in a searching phase, hand it the grid's highest-value
// waypoint and wait waypoint_interval_s for it to move and report telemetry
// back (the parallel fleet/telemetry/<id> handler runs update_map). The loop
// never forces a phase change; it only stops issuing waypoints once the
// drone leaves a searching phase by its own transitions.
func (c *Coordinator) searchLoop(ctx context.Context, droneID string) {
	interval := time.Duration(c.cfg.ProbSearch.WaypointIntervalS * float64(time.Second))
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		rec, known := c.roster[droneID]
		searching := known && isSearchingPhase(rec.Phase)
		c.mu.Unlock()
		if !searching {
			return
		}

		c.mu.Lock()
		var waypoint model.Position
		if c.grid != nil {
			waypoint = c.grid.GetNextSearchWaypoint()
		}
		c.mu.Unlock()

		c.publishCommand(droneID, "GOTO_WAYPOINT", map[string]any{"position": waypoint})
		if c.metrics != nil {
			c.metrics.WaypointsAssigned.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
