package missionfsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-ops/mobfleet/internal/model"
)

func newMachine(role model.Role) (*Machine, *[]model.Phase) {
	var history []model.Phase
	m := New("drone-1", role, func(old, new model.Phase, trigger string) {
		history = append(history, new)
	})
	return m, &history
}

func TestScoutHappyPathMOBSearch(t *testing.T) {
	m, history := newMachine(model.RoleScout)
	m.SetMissionType(model.MissionMOBSearch)

	phase, ok := m.Fire("start_mission")
	require.True(t, ok)
	assert.Equal(t, model.PhasePreflight, phase)

	phase, ok = m.Fire("preflight_success")
	require.True(t, ok)
	assert.Equal(t, model.PhaseTakeoff, phase)

	phase, ok = m.Fire("takeoff_success")
	require.True(t, ok)
	assert.Equal(t, model.PhaseRoleSearchPrimary, phase)

	phase, ok = m.Fire("target_sighted")
	require.True(t, ok)
	assert.Equal(t, model.PhaseTargetPendingConfirm, phase)

	phase, ok = m.Fire("confirm_target")
	require.True(t, ok)
	assert.Equal(t, model.PhaseTargetConfirmed, phase)

	phase, ok = m.Fire("delivery_request_sent")
	require.True(t, ok)
	assert.Equal(t, model.PhaseReturning, phase)

	phase, ok = m.Fire("arrived_home")
	require.True(t, ok)
	assert.Equal(t, model.PhaseLanding, phase)

	phase, ok = m.Fire("land_complete")
	require.True(t, ok)
	assert.Equal(t, model.PhaseCompleted, phase)

	assert.Equal(t, []model.Phase{
		model.PhasePreflight, model.PhaseTakeoff, model.PhaseRoleSearchPrimary,
		model.PhaseTargetPendingConfirm, model.PhaseTargetConfirmed,
		model.PhaseReturning, model.PhaseLanding, model.PhaseCompleted,
	}, *history)
}

func TestRejectionReturnsScoutToSearchPrimary(t *testing.T) {
	m, _ := newMachine(model.RoleScout)
	m.SetMissionType(model.MissionMOBSearch)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	m.Fire("takeoff_success")
	m.Fire("target_sighted")

	phase, ok := m.Fire("reject_target")
	require.True(t, ok)
	assert.Equal(t, model.PhaseRoleSearchPrimary, phase)
}

func TestUnmatchedTriggerIsSilentNoOp(t *testing.T) {
	m, history := newMachine(model.RoleScout)
	phase, ok := m.Fire("arrived_home") // IDLE has no such row
	assert.False(t, ok)
	assert.Equal(t, model.PhaseIdle, phase)
	assert.Empty(t, *history)
}

func TestEmergencySupersedesEveryOtherTransitionAndIsAbsorbing(t *testing.T) {
	m, _ := newMachine(model.RoleScout)
	m.SetMissionType(model.MissionMOBSearch)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	m.Fire("takeoff_success")

	phase, ok := m.Fire("trigger_emergency")
	require.True(t, ok)
	assert.Equal(t, model.PhaseEmergency, phase)

	// Once in EMERGENCY, nothing except reset_from_emergency leaves it.
	for _, trigger := range []string{"start_mission", "preflight_success", "takeoff_success",
		"target_sighted", "confirm_target", "arrived_home", "land_complete",
		"local_operator_takeover"} {
		phase, ok = m.Fire(trigger)
		assert.False(t, ok, "trigger %q should be rejected while in EMERGENCY", trigger)
		assert.Equal(t, model.PhaseEmergency, phase)
	}

	phase, ok = m.Fire("reset_from_emergency")
	require.True(t, ok)
	assert.Equal(t, model.PhaseIdle, phase)
}

func TestLocalOperatorTakeoverUnavailableFromEmergency(t *testing.T) {
	m, _ := newMachine(model.RoleUtility)
	m.Fire("trigger_emergency")
	_, ok := m.Fire("local_operator_takeover")
	assert.False(t, ok)
}

func TestLocalOperatorReleaseAlwaysReturnsHome(t *testing.T) {
	m, _ := newMachine(model.RoleUtility)
	m.SetMissionType(model.MissionPatrol)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	m.Fire("takeoff_success")
	require.Equal(t, model.PhaseRoleUtilityTask, m.Phase())

	phase, ok := m.Fire("local_operator_takeover")
	require.True(t, ok)
	assert.Equal(t, model.PhaseLocalOperatorControl, phase)

	phase, ok = m.Fire("local_operator_release")
	require.True(t, ok)
	assert.Equal(t, model.PhaseReturning, phase, "release is a safety default regardless of prior role state")
}

func TestPayloadNeverEntersSearchOrUtilityPhases(t *testing.T) {
	m, _ := newMachine(model.RolePayload)

	m.SetMissionType(model.MissionMOBSearch)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	phase, ok := m.Fire("takeoff_success")
	assert.False(t, ok, "payload must not be admitted into ROLE_SEARCH_* via MOB_SEARCH")
	assert.NotEqual(t, model.PhaseRoleSearchPrimary, phase)
	assert.NotEqual(t, model.PhaseRoleSearchAssist, phase)

	m.SetMissionType(model.MissionPatrol)
	phase, ok = m.Fire("takeoff_success")
	assert.False(t, ok, "payload must not be admitted into ROLE_UTILITY_TASK")
	assert.NotEqual(t, model.PhaseRoleUtilityTask, phase)
}

func TestPayloadDeliveryPath(t *testing.T) {
	m, _ := newMachine(model.RolePayload)
	m.SetMissionType(model.MissionPayloadDelivery)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	phase, ok := m.Fire("takeoff_success")
	require.True(t, ok)
	assert.Equal(t, model.PhaseDelivering, phase)
}

func TestUtilityOverwatchReachesEmergencyAssist(t *testing.T) {
	m, _ := newMachine(model.RoleUtility)
	m.SetMissionType(model.MissionOverwatch)
	m.Fire("start_mission")
	m.Fire("preflight_success")
	phase, ok := m.Fire("takeoff_success")
	require.True(t, ok)
	assert.Equal(t, model.PhaseRoleEmergencyAssist, phase)

	phase, ok = m.Fire("overwatch_complete")
	require.True(t, ok)
	assert.Equal(t, model.PhaseReturning, phase)
}
