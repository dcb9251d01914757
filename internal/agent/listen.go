package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/model"
)

type missionStartMsg struct {
	Type     string           `json:"type"`
	Position *model.Position  `json:"position,omitempty"`
}

type confirmationMsg struct {
	DroneID string `json:"drone_id"`
	Type    string `json:"type"`
}

type targetFoundMsg struct {
	Position     model.Position `json:"position"`
	SourceDrone  string         `json:"source_drone"`
}

type mapUpdateMsg struct {
	DroneID      string         `json:"drone_id"`
	Position     model.Position `json:"position"`
	Altitude     float64        `json:"altitude"`
	HasDetection bool           `json:"has_detection"`
}

// listen is the bus-listener task: it subscribes to every topic the agent
// reacts to and dispatches each message, per spec.md §4.4 "Event listener".
func (a *Agent) listen(ctx context.Context) error {
	topics := []string{
		"mission/start",
		"fleet/event/confirmation",
		"fleet/event/target_found",
		"fleet/map/update",
		fmt.Sprintf("drone/command/%s", a.droneID),
	}

	merged := make(chan bus.Message, 64)
	for _, t := range topics {
		ch, err := a.bus.Subscribe(ctx, t)
		if err != nil {
			return fmt.Errorf("subscribing %s: %w", t, err)
		}
		go forward(ctx, ch, merged)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-merged:
			a.dispatch(msg)
		}
	}
}

func forward(ctx context.Context, in <-chan bus.Message, out chan<- bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Agent) dispatch(msg bus.Message) {
	switch msg.Topic {
	case "mission/start":
		a.handleMissionStart(msg.Payload)
	case "fleet/event/confirmation":
		a.handleConfirmation(msg.Payload)
	case "fleet/event/target_found":
		a.handleTargetFound(msg.Payload)
	case "fleet/map/update":
		a.handleMapUpdate(msg.Payload)
	default:
		a.handleCommand(msg.Payload)
	}
}

func (a *Agent) handleMissionStart(payload []byte) {
	var m missionStartMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		a.logger.Warn("malformed mission/start payload", "error", err)
		return
	}
	a.startMission(m.Type)
}

// startMission implements the role-appropriate mission-type assignment spec.md
// §4.4 describes for mission/start, shared with the drone/command/<id>
// START_MISSION command the Coordinator uses to task a specific drone
// directly (spec.md §6's command set).
func (a *Agent) startMission(missionType string) {
	switch missionType {
	case "MOB_EMERGENCY":
		switch a.role {
		case model.RoleScout:
			a.machine.SetMissionType(model.MissionMOBSearch)
		case model.RolePayload:
			a.machine.SetMissionType(model.MissionStandby)
		case model.RoleUtility:
			a.machine.SetMissionType(model.MissionMOBSearch)
		}
	case "GENERAL_EMERGENCY":
		switch a.role {
		case model.RoleScout:
			a.machine.SetMissionType(model.MissionOverwatch)
		case model.RolePayload:
			a.machine.SetMissionType(model.MissionStandby)
		case model.RoleUtility:
			if a.controller.Telemetry().BatteryPct <= a.health.MinBatteryPatrolRTL {
				a.logger.Info("ignoring GENERAL_EMERGENCY overwatch tasking, battery below patrol-RTL threshold")
				return
			}
			a.machine.SetMissionType(model.MissionOverwatch)
		}
	case "UTILITY_HULL_INSPECTION":
		switch a.role {
		case model.RoleUtility:
			a.machine.SetMissionType(model.MissionPatrol)
		case model.RoleScout:
			if a.controller.Telemetry().BatteryPct <= a.health.MinBatteryPreflight {
				a.logger.Info("refusing patrol tasking, battery below preflight threshold")
				return
			}
			a.machine.SetMissionType(model.MissionPatrol)
		case model.RolePayload:
			a.logger.Info("payload always refuses UTILITY_HULL_INSPECTION")
			return
		}
	default:
		a.logger.Warn("unknown mission/start type", "type", missionType)
		return
	}

	a.machine.Fire("start_mission")
}

func (a *Agent) handleConfirmation(payload []byte) {
	var m confirmationMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		a.logger.Warn("malformed fleet/event/confirmation payload", "error", err)
		return
	}
	if m.DroneID != a.droneID {
		return
	}
	if a.machine.Phase() != model.PhaseTargetPendingConfirm {
		return
	}

	switch m.Type {
	case "OPERATOR_CONFIRM_TARGET":
		a.machine.Fire("confirm_target")
		data, _ := json.Marshal(map[string]any{
			"position":     a.pendingTarget,
			"source_drone": a.droneID,
		})
		a.bus.Publish("fleet/event/target_found", data, false)
		a.machine.Fire("delivery_request_sent")
	case "OPERATOR_REJECT_TARGET":
		a.machine.Fire("reject_target")
	default:
		a.logger.Warn("unknown confirmation type", "type", m.Type)
	}
}

func (a *Agent) handleTargetFound(payload []byte) {
	var m targetFoundMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		a.logger.Warn("malformed fleet/event/target_found payload", "error", err)
		return
	}
	if a.role != model.RolePayload {
		return
	}
	phase := a.machine.Phase()
	if phase != model.PhaseRoleEmergencyStandby && phase != model.PhaseIdle {
		return
	}
	a.pendingTarget = m.Position
	a.machine.SetMissionType(model.MissionPayloadDelivery)
	if phase == model.PhaseIdle {
		a.machine.Fire("start_mission")
		return
	}
	// airborne standby: jump straight to DELIVERING without a ground preflight.
	a.machine.Fire("target_handoff")
}

func (a *Agent) handleMapUpdate(payload []byte) {
	if a.grid == nil {
		return
	}
	var m mapUpdateMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		a.logger.Warn("malformed fleet/map/update payload", "error", err)
		return
	}
	if m.DroneID == a.droneID {
		return
	}
	a.grid.UpdateMap(m.Position, m.Altitude, m.HasDetection)
}

func (a *Agent) handleCommand(payload []byte) {
	var cmd struct {
		Command  string          `json:"command"`
		Position *model.Position `json:"position,omitempty"`
		Type     string          `json:"type,omitempty"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		a.logger.Warn("malformed drone/command payload", "error", err)
		return
	}

	switch cmd.Command {
	case "START_MISSION":
		a.startMission(cmd.Type)
	case "GOTO_WAYPOINT":
		if cmd.Position != nil && a.machine.Phase() != model.PhaseLocalOperatorControl {
			a.controller.GoTo(context.Background(), *cmd.Position, 5)
		}
	case "RETURN_TO_HOME":
		a.machine.Fire("search_complete_negative")
	case "START_PATROL":
		a.machine.SetMissionType(model.MissionPatrol)
		a.machine.Fire("start_mission")
	case "START_OVERWATCH":
		a.machine.SetMissionType(model.MissionOverwatch)
		a.machine.Fire("start_mission")
	}
}
