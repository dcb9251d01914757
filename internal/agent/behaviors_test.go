package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/model"
)

// trackingController wraps fakeController with call counters, used to assert
// which flight-controller methods a behavior actually invokes.
type trackingController struct {
	fakeController
	landCalls int
}

func (t *trackingController) Land(ctx context.Context) error {
	t.landCalls++
	return nil
}

func TestRunEmergencyLandsAndResetsToIdle(t *testing.T) {
	b := bus.NewMemory()
	deps := testDeps("scout_1", b)
	controller := &trackingController{fakeController: fakeController{telemetry: healthyTelemetry()}}
	deps.Controller = controller
	scout := New("scout_1", model.RoleScout, deps)

	_, ok := scout.machine.Fire("trigger_emergency")
	require.True(t, ok)
	require.Equal(t, model.PhaseEmergency, scout.machine.Phase())

	scout.runEmergency(context.Background())

	assert.Equal(t, 1, controller.landCalls, "emergency must issue an immediate land, not return-to-home")
	assert.Equal(t, model.PhaseIdle, scout.machine.Phase(), "the agent must drop back to IDLE after the emergency land attempt")
}

func TestRunReturningArrivesHomeOnHorizontalProximityDespiteAltitude(t *testing.T) {
	b := bus.NewMemory()
	deps := testDeps("scout_1", b)
	// Directly over home but still at cruise altitude, mirroring
	// flightctl.Simulated.ReturnToHome holding Z while moving X/Y.
	telemetry := healthyTelemetry()
	telemetry.Position = model.Position{X: 0, Y: 0, Z: 40}
	controller := &fakeController{telemetry: telemetry}
	deps.Controller = controller
	scout := New("scout_1", model.RoleScout, deps)
	scout.home = model.Position{X: 0, Y: 0, Z: 0}

	scout.machine.SetMissionType(model.MissionMOBSearch)
	scout.machine.Fire("start_mission")
	scout.machine.Fire("preflight_success")
	scout.machine.Fire("takeoff_success")
	scout.pendingTarget = model.Position{X: 120, Y: 80, Z: 0}
	scout.machine.Fire("target_sighted")
	confirmation, _ := json.Marshal(map[string]any{"drone_id": "scout_1", "type": "OPERATOR_CONFIRM_TARGET"})
	scout.handleConfirmation(confirmation)
	require.Equal(t, model.PhaseReturning, scout.machine.Phase())

	scout.runReturning(context.Background())

	assert.Equal(t, model.PhaseLanding, scout.machine.Phase(), "horizontal arrival over home must trigger the RETURNING to LANDING handoff even while still airborne")
}
