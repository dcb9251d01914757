package coordinator

import (
	"encoding/json"
	"time"

	"github.com/skyward-ops/mobfleet/internal/model"
)

type connectMsg struct {
	DroneID string     `json:"drone_id"`
	Role    model.Role `json:"role"`
}

func (c *Coordinator) handleConnect(payload []byte) {
	var m connectMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Warn("malformed fleet/connect payload", "error", err)
		return
	}
	c.mu.Lock()
	rec, known := c.roster[m.DroneID]
	if known {
		rec.Phase = model.PhaseIdle
		rec.LastSeen = time.Now()
	}
	size := len(c.roster)
	c.mu.Unlock()

	if !known {
		c.logger.Warn("fleet/connect from unknown drone", "drone_id", m.DroneID)
		return
	}
	if c.metrics != nil {
		c.metrics.FleetSize.Set(float64(size))
	}
}

type telemetryMsg struct {
	DroneID      string          `json:"drone_id"`
	MissionPhase model.Phase     `json:"mission_phase"`
	Telemetry    model.Telemetry `json:"telemetry"`
}

func (c *Coordinator) handleTelemetry(droneID string, payload []byte) {
	var m telemetryMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Warn("malformed telemetry payload", "drone_id", droneID, "error", err)
		return
	}

	c.mu.Lock()
	rec, known := c.roster[droneID]
	if known {
		t := m.Telemetry
		rec.Telemetry = &t
		rec.Phase = m.MissionPhase
		rec.LastSeen = time.Now()
	}
	centralized := c.grid != nil
	searching := known && isSearchingPhase(rec.Phase)
	if centralized && searching {
		c.grid.UpdateMap(m.Telemetry.Position, m.Telemetry.Position.Z, false)
	}
	c.mu.Unlock()

	if !known {
		c.logger.Warn("telemetry from unknown drone", "drone_id", droneID)
		return
	}
	c.broadcaster.Broadcast(Frame{Type: "telemetry", Data: m})
}

type stateMsg struct {
	State   model.Phase `json:"state"`
	DroneID string      `json:"drone_id"`
	Role    model.Role  `json:"role"`
}

func (c *Coordinator) handleState(droneID string, payload []byte) {
	var m stateMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Warn("malformed state payload", "drone_id", droneID, "error", err)
		return
	}

	c.mu.Lock()
	rec, known := c.roster[droneID]
	var wasOverwatch bool
	if known {
		wasOverwatch = rec.Phase == model.PhaseRoleEmergencyEyes
		rec.Phase = m.State
		rec.LastSeen = time.Now()
	}
	c.mu.Unlock()

	if !known {
		c.logger.Warn("state update from unknown drone", "drone_id", droneID)
		return
	}
	if wasOverwatch && m.State != model.PhaseRoleEmergencyEyes {
		c.broadcaster.StopVideoStream(droneID)
		c.mu.Lock()
		if c.overwatchDrone == droneID {
			c.overwatchDrone = ""
		}
		c.mu.Unlock()
	}
	c.broadcaster.Broadcast(Frame{Type: "state", Data: m})
}

type eventMsg struct {
	Type       string          `json:"type"`
	Position   *model.Position `json:"position,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// handleEvent dispatches a fleet/event/<id> message by its type field, per
// spec.md §4.5: PENDING_CONFIRMATION forwards to the GCS, TARGET_DELIVERY_REQUEST
// locks the central grid and tasks the payload drone directly (a secondary
// path to the operator-mediated confirm_target flow in internal/agent/listen.go),
// and AI_DETECTION folds an externally-sourced detection into the grid.
func (c *Coordinator) handleEvent(droneID string, payload []byte) {
	var m eventMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Warn("malformed event payload", "drone_id", droneID, "error", err)
		return
	}

	switch m.Type {
	case "PENDING_CONFIRMATION":
		c.broadcaster.Broadcast(Frame{Type: "PENDING_CONFIRMATION", Data: map[string]any{
			"drone_id": droneID, "position": m.Position, "confidence": m.Confidence,
		}})
	case "TARGET_DELIVERY_REQUEST":
		if m.Position == nil {
			return
		}
		c.mu.Lock()
		if c.grid != nil {
			c.grid.ConfirmTargetAt(*m.Position)
		}
		c.mu.Unlock()
		c.taskPayloadDrone(*m.Position)
	case "AI_DETECTION":
		if m.Position == nil {
			return
		}
		c.mu.Lock()
		if c.grid != nil {
			c.grid.UpdateMap(*m.Position, m.Position.Z, true)
		}
		c.mu.Unlock()
	}
}

// taskPayloadDrone finds an idle or standby payload drone and sends it
// directly to pos, bypassing the operator-confirm handoff. Used only by the
// legacy TARGET_DELIVERY_REQUEST event path.
func (c *Coordinator) taskPayloadDrone(pos model.Position) {
	c.mu.Lock()
	var target string
	for id, rec := range c.roster {
		if rec.Role == model.RolePayload && (rec.Phase == model.PhaseIdle || rec.Phase == model.PhaseRoleEmergencyStandby) {
			target = id
			break
		}
	}
	c.mu.Unlock()
	if target == "" {
		c.logger.Warn("no payload drone available for delivery request")
		return
	}
	c.publishCommand(target, "GOTO_WAYPOINT", map[string]any{"position": pos})
}
