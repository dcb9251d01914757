// Package missionfsm implements the per-drone mission state machine as an
// explicit typed transition table, replacing the source's metaprogrammed
// 'transitions' library machine (see SPEC_FULL.md §4.3 and
// original_source/drone/core/state_machine.py) with a table-driven dispatch:
// adding a transition is one row.
package missionfsm

import "github.com/skyward-ops/mobfleet/internal/model"

// Guard predicates a transition on the drone's static role and its current
// mission type. A nil Guard always passes.
type Guard func(role model.Role, mtype model.MissionType) bool

// Transition is one row of the table: firing Trigger while in one of From
// (or, if From is empty, while in any phase not listed in Exclude) and
// passing Guard moves the drone to To.
type Transition struct {
	Trigger string
	From    []model.Phase
	Exclude []model.Phase
	To      model.Phase
	Guard   Guard
}

func roleIs(want model.Role) Guard {
	return func(role model.Role, _ model.MissionType) bool { return role == want }
}

func typeIs(want model.MissionType) Guard {
	return func(_ model.Role, mtype model.MissionType) bool { return mtype == want }
}

func and(guards ...Guard) Guard {
	return func(role model.Role, mtype model.MissionType) bool {
		for _, g := range guards {
			if g != nil && !g(role, mtype) {
				return false
			}
		}
		return true
	}
}

// Table is the full transition table, combining spec.md's "Key transitions"
// table with the rows original_source/drone/core/state_machine.py carries
// that spec.md only names in prose (search_complete_negative,
// overwatch_complete, patrol_complete, patrol_battery_low, delivery_complete,
// mission_finished, reset_from_emergency).
var Table = []Transition{
	{
		Trigger: "start_mission",
		From:    []model.Phase{model.PhaseIdle, model.PhaseRoleUtilityTask},
		To:      model.PhasePreflight,
	},
	{
		Trigger: "preflight_success",
		From:    []model.Phase{model.PhasePreflight},
		To:      model.PhaseTakeoff,
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleSearchPrimary,
		Guard:   and(roleIs(model.RoleScout), typeIs(model.MissionMOBSearch)),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleSearchAssist,
		Guard:   and(roleIs(model.RoleUtility), typeIs(model.MissionMOBSearch)),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleEmergencyStandby,
		Guard:   typeIs(model.MissionStandby),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleUtilityTask,
		Guard:   and(typeIs(model.MissionPatrol), func(role model.Role, _ model.MissionType) bool { return role != model.RolePayload }),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleEmergencyEyes,
		Guard:   and(roleIs(model.RoleScout), typeIs(model.MissionOverwatch)),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseRoleEmergencyAssist,
		Guard:   and(roleIs(model.RoleUtility), typeIs(model.MissionOverwatch)),
	},
	{
		Trigger: "takeoff_success",
		From:    []model.Phase{model.PhaseTakeoff},
		To:      model.PhaseDelivering,
		Guard:   typeIs(model.MissionPayloadDelivery),
	},
	{
		Trigger: "target_sighted",
		From:    []model.Phase{model.PhaseRoleSearchPrimary, model.PhaseRoleSearchAssist},
		To:      model.PhaseTargetPendingConfirm,
	},
	{
		Trigger: "confirm_target",
		From:    []model.Phase{model.PhaseTargetPendingConfirm},
		To:      model.PhaseTargetConfirmed,
	},
	{
		Trigger: "reject_target",
		From:    []model.Phase{model.PhaseTargetPendingConfirm},
		To:      model.PhaseRoleSearchPrimary,
		Guard:   roleIs(model.RoleScout),
	},
	{
		Trigger: "reject_target",
		From:    []model.Phase{model.PhaseTargetPendingConfirm},
		To:      model.PhaseRoleSearchAssist,
		Guard:   roleIs(model.RoleUtility),
	},
	{
		Trigger: "delivery_request_sent",
		From:    []model.Phase{model.PhaseTargetConfirmed},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "search_complete_negative",
		From:    []model.Phase{model.PhaseRoleSearchPrimary, model.PhaseRoleSearchAssist},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "delivery_complete",
		From:    []model.Phase{model.PhaseDelivering},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "patrol_complete",
		From:    []model.Phase{model.PhaseRoleUtilityTask},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "patrol_battery_low",
		From:    []model.Phase{model.PhaseRoleUtilityTask},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "overwatch_complete",
		From:    []model.Phase{model.PhaseRoleEmergencyEyes, model.PhaseRoleEmergencyAssist},
		To:      model.PhaseReturning,
	},
	{
		Trigger: "arrived_home",
		From:    []model.Phase{model.PhaseReturning},
		To:      model.PhaseLanding,
	},
	{
		Trigger: "land_complete",
		From:    []model.Phase{model.PhaseLanding},
		To:      model.PhaseCompleted,
	},
	{
		Trigger: "mission_finished",
		From:    []model.Phase{model.PhaseCompleted},
		To:      model.PhaseIdle,
	},
	{
		Trigger: "trigger_emergency",
		From:    nil, // any phase, including mid-mission — emergency supersedes everything
		To:      model.PhaseEmergency,
	},
	{
		Trigger: "reset_from_emergency",
		From:    []model.Phase{model.PhaseEmergency},
		To:      model.PhaseIdle,
	},
	{
		Trigger: "local_operator_takeover",
		From:    nil,
		Exclude: []model.Phase{model.PhaseEmergency},
		To:      model.PhaseLocalOperatorControl,
	},
	{
		Trigger: "local_operator_release",
		From:    []model.Phase{model.PhaseLocalOperatorControl},
		To:      model.PhaseReturning,
	},
	{
		// airborne-standby handoff: a payload drone already hovering in
		// ROLE_EMERGENCY_STANDBY moves straight to DELIVERING without a
		// ground preflight (spec.md §4.4 target-handoff protocol, step 4).
		Trigger: "target_handoff",
		From:    []model.Phase{model.PhaseRoleEmergencyStandby},
		To:      model.PhaseDelivering,
		Guard:   and(roleIs(model.RolePayload), typeIs(model.MissionPayloadDelivery)),
	},
}
