package coordinator

import (
	"encoding/json"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// TriggerMOBMode implements spec.md §4.5's TRIGGER_MOB_MODE operator
// command: initialize the central grid, assign a scout (failing over to
// utility), restart the search control loop, and warn if no payload drone is
// ready to deliver once a target is confirmed.
func (c *Coordinator) TriggerMOBMode() {
	c.mu.Lock()
	if c.grid != nil {
		c.grid.InitializeMap()
	}
	scout := c.findDroneLocked(model.RoleScout, model.PhaseIdle, model.PhaseRoleUtilityTask)
	assigned := scout
	if assigned == "" {
		assigned = c.findDroneLocked(model.RoleUtility, model.PhaseIdle, model.PhaseRoleUtilityTask)
	}
	payloadReady := c.findDroneLocked(model.RolePayload, model.PhaseIdle, model.PhaseRoleEmergencyStandby) != ""
	c.mu.Unlock()

	if assigned == "" {
		c.logger.Warn("TRIGGER_MOB_MODE: no scout or utility drone available")
		c.broadcaster.Broadcast(Frame{Type: "ERROR", Data: "no scout or utility drone available for MOB mode"})
		return
	}
	if !payloadReady {
		c.logger.Warn("TRIGGER_MOB_MODE: no payload drone ready for delivery")
		c.broadcaster.Broadcast(Frame{Type: "WARNING", Data: "no payload drone ready, confirmation will stall"})
	}

	c.publishMissionStart(assigned, "MOB_EMERGENCY", nil)

	c.mu.Lock()
	c.assignedScout = assigned
	c.mu.Unlock()
	c.startSearchLoop(assigned)
}

// TriggerPatrolMode tasks an idle utility drone with START_PATROL.
func (c *Coordinator) TriggerPatrolMode() {
	c.mu.Lock()
	target := c.findDroneLocked(model.RoleUtility, model.PhaseIdle)
	c.mu.Unlock()
	if target == "" {
		c.logger.Warn("TRIGGER_PATROL_MODE: no idle utility drone available")
		c.broadcaster.Broadcast(Frame{Type: "WARNING", Data: "no idle utility drone available"})
		return
	}
	c.publishCommand(target, "START_PATROL", nil)
}

// TriggerOverwatchMode tasks a utility drone (falling back to a scout) to
// orbit pos and starts its video stream on the GCS broadcaster.
func (c *Coordinator) TriggerOverwatchMode(pos model.Position) {
	c.mu.Lock()
	target := c.findDroneLocked(model.RoleUtility, model.PhaseIdle)
	if target == "" {
		target = c.findDroneLocked(model.RoleScout, model.PhaseIdle)
	}
	c.mu.Unlock()
	if target == "" {
		c.logger.Warn("TRIGGER_OVERWATCH_MODE: no drone available")
		c.broadcaster.Broadcast(Frame{Type: "ERROR", Data: "no drone available for overwatch"})
		return
	}
	c.publishCommand(target, "START_VIDEO_STREAM", nil)
	c.publishCommand(target, "START_OVERWATCH", map[string]any{"position": pos})

	c.mu.Lock()
	c.overwatchDrone = target
	c.mu.Unlock()
	c.broadcaster.StartVideoStream(target)
}

// ConfirmTarget publishes the OPERATOR_CONFIRM_TARGET confirmation event
// addressed to droneID, per the target-handoff protocol's step 2.
func (c *Coordinator) ConfirmTarget(droneID string) {
	c.publishConfirmation(droneID, "OPERATOR_CONFIRM_TARGET")
	c.broadcaster.Broadcast(Frame{Type: "TARGET_CONFIRMED", Data: map[string]any{"drone_id": droneID}})
}

// RejectTarget publishes OPERATOR_REJECT_TARGET addressed to droneID.
func (c *Coordinator) RejectTarget(droneID string) {
	c.publishConfirmation(droneID, "OPERATOR_REJECT_TARGET")
	c.broadcaster.Broadcast(Frame{Type: "TARGET_REJECTED", Data: map[string]any{"drone_id": droneID}})
}

func (c *Coordinator) publishConfirmation(droneID, kind string) {
	payload, err := json.Marshal(map[string]any{"drone_id": droneID, "type": kind})
	if err != nil {
		c.logger.Warn("failed to marshal confirmation event", "error", err)
		return
	}
	if err := c.bus.Publish("fleet/event/confirmation", payload, false); err != nil {
		c.logger.Warn("failed to publish confirmation event", "drone_id", droneID, "error", err)
	}
}

// findDroneLocked returns the first roster entry with the given role whose
// phase matches one of wantPhases. Callers must hold c.mu.
func (c *Coordinator) findDroneLocked(role model.Role, wantPhases ...model.Phase) string {
	for id, rec := range c.roster {
		if rec.Role != role {
			continue
		}
		for _, p := range wantPhases {
			if rec.Phase == p {
				return id
			}
		}
	}
	return ""
}

// Roster returns a snapshot copy of the fleet roster, used by internal/gcs to
// serve the /api/fleet endpoint and to build a new client's initial frame.
func (c *Coordinator) Roster() []model.FleetVehicleRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.FleetVehicleRecord, 0, len(c.roster))
	for _, rec := range c.roster {
		out = append(out, *rec)
	}
	return out
}
