package missionfsm

import (
	"sync"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// OnTransition is invoked synchronously, inside Fire, immediately after the
// phase changes and before Fire returns — it must not block, since it runs
// under the Machine's lock. Use it only to publish the fleet/state
// notification (spec.md §4.3: "Every state change must emit a
// fleet/state/<drone_id> message"); long-running entry behavior belongs in
// the caller's own dispatch loop, started after Fire returns.
type OnTransition func(old, new model.Phase, trigger string)

// Machine is a single drone's mission state machine. Triggers rejected by
// every table row are silent no-ops (spec.md §4.3: "callers must tolerate
// this"); Fire's bool return lets a caller distinguish that case without an
// error value, matching the "rejected silently" contract.
type Machine struct {
	mu           sync.Mutex
	droneID      string
	role         model.Role
	missionType  model.MissionType
	phase        model.Phase
	onTransition OnTransition
}

// New constructs a Machine in its initial IDLE state.
func New(droneID string, role model.Role, onTransition OnTransition) *Machine {
	return &Machine{
		droneID:      droneID,
		role:         role,
		missionType:  model.MissionIdle,
		phase:        model.PhaseIdle,
		onTransition: onTransition,
	}
}

// Phase returns the current mission phase.
func (m *Machine) Phase() model.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Role returns the drone's static role.
func (m *Machine) Role() model.Role {
	return m.role
}

// MissionType returns the mission type currently in effect.
func (m *Machine) MissionType() model.MissionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missionType
}

// SetMissionType records the mission context a subsequent start_mission /
// takeoff_success trigger should be guarded against. It must be called
// before firing start_mission so the eventual takeoff_success guard sees the
// right type (mirrors the Python model's current_mission_type field, set by
// the event listener before calling start_mission).
func (m *Machine) SetMissionType(t model.MissionType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missionType = t
}

// Fire attempts trigger; it returns the new phase and true on success, or
// the unchanged current phase and false if no table row matches (wrong
// current phase, or guard failed) — a silent rejection per spec.md §4.3/§7
// (PreconditionFailure: "Logged; no state change").
func (m *Machine) Fire(trigger string) (model.Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range Table {
		if t.Trigger != trigger {
			continue
		}
		if !m.phaseMatches(t) {
			continue
		}
		if t.Guard != nil && !t.Guard(m.role, m.missionType) {
			continue
		}

		old := m.phase
		m.phase = t.To
		if m.onTransition != nil {
			m.onTransition(old, t.To, trigger)
		}
		return m.phase, true
	}
	return m.phase, false
}

func (m *Machine) phaseMatches(t Transition) bool {
	if len(t.From) == 0 {
		for _, excluded := range t.Exclude {
			if m.phase == excluded {
				return false
			}
		}
		return true
	}
	for _, from := range t.From {
		if m.phase == from {
			return true
		}
	}
	return false
}
