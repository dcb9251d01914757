package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/detect"
	"github.com/skyward-ops/mobfleet/internal/flightctl"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
)

func testDeps(droneID string, b bus.Bus) Deps {
	return Deps{
		Bus:        b,
		Controller: flightctl.NewSimulated(droneID, obslog.New("text", "error")),
		Detector:   detect.NewSimulated(0, 1),
		Logger:     obslog.New("text", "error"),
		Health: config.HealthConfig{
			MinBatteryPreflight: 20,
			MinBatteryEmergency: 5,
			MinBatteryPatrolRTL: 15,
			MaxHeartbeatLatency: 5 * time.Second,
		},
	}
}

func TestHandleMissionStartMOBEmergencyAssignsMissionTypeByRole(t *testing.T) {
	b := bus.NewMemory()

	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	scout.handleMissionStart([]byte(`{"type":"MOB_EMERGENCY"}`))
	assert.Equal(t, model.MissionMOBSearch, scout.machine.MissionType())
	assert.Equal(t, model.PhasePreflight, scout.machine.Phase())

	payload := New("payload_1", model.RolePayload, testDeps("payload_1", b))
	payload.handleMissionStart([]byte(`{"type":"MOB_EMERGENCY"}`))
	assert.Equal(t, model.MissionStandby, payload.machine.MissionType())
	assert.Equal(t, model.PhasePreflight, payload.machine.Phase())

	utility := New("utility_1", model.RoleUtility, testDeps("utility_1", b))
	utility.handleMissionStart([]byte(`{"type":"MOB_EMERGENCY"}`))
	assert.Equal(t, model.MissionMOBSearch, utility.machine.MissionType())
}

func TestHandleCommandStartMissionAppliesSameRoleLogicAsMissionStart(t *testing.T) {
	b := bus.NewMemory()
	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	scout.handleCommand([]byte(`{"command":"START_MISSION","type":"MOB_EMERGENCY"}`))
	assert.Equal(t, model.MissionMOBSearch, scout.machine.MissionType(), "the Coordinator tasks a drone directly via drone/command/<id>, not mission/start")
	assert.Equal(t, model.PhasePreflight, scout.machine.Phase())
}

func TestHandleMissionStartPayloadRefusesHullInspection(t *testing.T) {
	b := bus.NewMemory()
	payload := New("payload_1", model.RolePayload, testDeps("payload_1", b))
	payload.handleMissionStart([]byte(`{"type":"UTILITY_HULL_INSPECTION"}`))
	assert.Equal(t, model.PhaseIdle, payload.machine.Phase())
}

func TestHandleConfirmationConfirmPublishesTargetFoundAndReturns(t *testing.T) {
	b := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "fleet/event/target_found")
	require.NoError(t, err)

	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	scout.machine.SetMissionType(model.MissionMOBSearch)
	scout.machine.Fire("start_mission")
	scout.machine.Fire("preflight_success")
	scout.machine.Fire("takeoff_success")
	scout.pendingTarget = model.Position{X: 120, Y: 80, Z: 0}
	_, ok := scout.machine.Fire("target_sighted")
	require.True(t, ok)
	require.Equal(t, model.PhaseTargetPendingConfirm, scout.machine.Phase())

	confirmation, _ := json.Marshal(map[string]any{"drone_id": "scout_1", "type": "OPERATOR_CONFIRM_TARGET"})
	scout.handleConfirmation(confirmation)

	assert.Equal(t, model.PhaseReturning, scout.machine.Phase())

	select {
	case msg := <-ch:
		var body struct {
			Position    model.Position `json:"position"`
			SourceDrone string         `json:"source_drone"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &body))
		assert.Equal(t, model.Position{X: 120, Y: 80, Z: 0}, body.Position)
	case <-time.After(time.Second):
		t.Fatal("expected fleet/event/target_found to be published")
	}
}

func TestHandleConfirmationRejectReturnsScoutToSearch(t *testing.T) {
	b := bus.NewMemory()
	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	scout.machine.SetMissionType(model.MissionMOBSearch)
	scout.machine.Fire("start_mission")
	scout.machine.Fire("preflight_success")
	scout.machine.Fire("takeoff_success")
	scout.machine.Fire("target_sighted")

	confirmation, _ := json.Marshal(map[string]any{"drone_id": "scout_1", "type": "OPERATOR_REJECT_TARGET"})
	scout.handleConfirmation(confirmation)

	assert.Equal(t, model.PhaseRoleSearchPrimary, scout.machine.Phase())
}

func TestHandleConfirmationIgnoresOtherDrone(t *testing.T) {
	b := bus.NewMemory()
	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	scout.machine.SetMissionType(model.MissionMOBSearch)
	scout.machine.Fire("start_mission")
	scout.machine.Fire("preflight_success")
	scout.machine.Fire("takeoff_success")
	scout.machine.Fire("target_sighted")

	confirmation, _ := json.Marshal(map[string]any{"drone_id": "scout_2", "type": "OPERATOR_CONFIRM_TARGET"})
	scout.handleConfirmation(confirmation)

	assert.Equal(t, model.PhaseTargetPendingConfirm, scout.machine.Phase(), "confirmation addressed to a different drone must be ignored")
}

func TestHandleTargetFoundMovesAirborneStandbyPayloadToDelivering(t *testing.T) {
	b := bus.NewMemory()
	payload := New("payload_1", model.RolePayload, testDeps("payload_1", b))
	payload.machine.SetMissionType(model.MissionStandby)
	payload.machine.Fire("start_mission")
	payload.machine.Fire("preflight_success")
	payload.machine.Fire("takeoff_success")
	require.Equal(t, model.PhaseRoleEmergencyStandby, payload.machine.Phase())

	targetFound, _ := json.Marshal(map[string]any{
		"position":     model.Position{X: 120, Y: 80, Z: 0},
		"source_drone": "scout_1",
	})
	payload.handleTargetFound(targetFound)

	assert.Equal(t, model.PhaseDelivering, payload.machine.Phase())
	assert.Equal(t, model.Position{X: 120, Y: 80, Z: 0}, payload.pendingTarget)
}

func TestHandleTargetFoundIgnoredByNonPayloadRoles(t *testing.T) {
	b := bus.NewMemory()
	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	targetFound, _ := json.Marshal(map[string]any{"position": model.Position{X: 1, Y: 2, Z: 0}})
	scout.handleTargetFound(targetFound)
	assert.Equal(t, model.PhaseIdle, scout.machine.Phase())
}

func TestHandleMapUpdateIsNoOpWithoutALocalGrid(t *testing.T) {
	b := bus.NewMemory()
	scout := New("scout_1", model.RoleScout, testDeps("scout_1", b))
	// No grid wired: handleMapUpdate must be a no-op, not a nil-pointer panic.
	msg, _ := json.Marshal(map[string]any{"drone_id": "scout_2", "position": model.Position{}, "altitude": 10.0, "has_detection": false})
	scout.handleMapUpdate(msg)
}

func TestHandleMapUpdateIgnoresSelfReportedUpdates(t *testing.T) {
	b := bus.NewMemory()
	deps := testDeps("scout_1", b)
	deps.Grid = searchgrid.New(searchgrid.Config{
		GridSize: 4, SearchAreaSizeM: 400, SearchAltitude: 50,
		RMax: 80, HRef: 30, MissProbability: 0.1,
	}, searchgrid.Area{}, obslog.New("text", "error"))
	scout := New("scout_1", model.RoleScout, deps)

	before := scout.grid.Sum()
	selfUpdate, _ := json.Marshal(map[string]any{
		"drone_id": "scout_1", "position": model.Position{X: 50, Y: 50, Z: 0}, "altitude": 50.0, "has_detection": false,
	})
	scout.handleMapUpdate(selfUpdate)
	assert.InDelta(t, before, scout.grid.Sum(), 1e-9, "a drone's own map update must not feed back into its local grid")

	peerUpdate, _ := json.Marshal(map[string]any{
		"drone_id": "scout_2", "position": model.Position{X: 50, Y: 50, Z: 0}, "altitude": 50.0, "has_detection": false,
	})
	scout.handleMapUpdate(peerUpdate)
	assert.InDelta(t, 1.0, scout.grid.Sum(), 1e-6, "probability mass should stay normalized after a peer gossip update")
}
