// Package model holds the value types shared across the mission kernel:
// positions, telemetry snapshots, roles, phases, and the fleet roster record.
package model

import (
	"math"
	"time"
)

// Position is a point in the local Cartesian search frame, meters.
type Position struct {
	X, Y, Z float64
}

// DistanceTo returns the Euclidean distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// VehicleMode is the flight-controller's reported mode (MAVLink/PX4-flavored),
// distinct from MissionPhase — telemetry never carries a MissionPhase and the
// mission FSM never carries a VehicleMode.
type VehicleMode string

const (
	ModeDisarmed VehicleMode = "DISARMED"
	ModeArmed    VehicleMode = "ARMED"
	ModeTakingOff VehicleMode = "TAKING_OFF"
	ModeGuided   VehicleMode = "GUIDED"
	ModeLoiter   VehicleMode = "LOITER"
	ModeLanding  VehicleMode = "LANDING"
	ModeManual   VehicleMode = "MANUAL"
)

// LEDColor is a simple named color for the drone's status light.
type LEDColor string

const (
	LEDOff    LEDColor = "OFF"
	LEDGreen  LEDColor = "GREEN"
	LEDRed    LEDColor = "RED"
	LEDYellow LEDColor = "YELLOW"
	LEDBlue   LEDColor = "BLUE"
)

// Telemetry is an immutable per-drone snapshot. Every sample is a new value;
// nothing about it is mutated in place once constructed.
type Telemetry struct {
	Position      Position
	Roll          float64
	Pitch         float64
	Yaw           float64
	BatteryPct    float64
	Mode          VehicleMode
	LED           LEDColor
	Connected     bool
	LastHeartbeat time.Time
}

// Role is a drone's static assignment; it never changes for the process lifetime.
type Role string

const (
	RoleScout   Role = "scout"
	RolePayload Role = "payload"
	RoleUtility Role = "utility"
)

// Phase is the mission state machine's tagged enumeration. Exactly one is
// active per drone at any time.
type Phase string

const (
	PhaseIdle                    Phase = "IDLE"
	PhasePreflight               Phase = "PREFLIGHT"
	PhaseTakeoff                 Phase = "TAKEOFF"
	PhaseRoleSearchPrimary       Phase = "ROLE_SEARCH_PRIMARY"
	PhaseRoleSearchAssist        Phase = "ROLE_SEARCH_ASSIST"
	PhaseRoleSearchDeliver       Phase = "ROLE_SEARCH_DELIVER" // == STANDBY
	PhaseRoleEmergencyEyes       Phase = "ROLE_EMERGENCY_EYES"
	PhaseRoleEmergencyStandby    Phase = "ROLE_EMERGENCY_STANDBY"
	PhaseRoleEmergencyAssist     Phase = "ROLE_EMERGENCY_ASSIST"
	PhaseRoleUtilityTask         Phase = "ROLE_UTILITY_TASK"
	PhaseTargetPendingConfirm    Phase = "TARGET_PENDING_CONFIRMATION"
	PhaseTargetConfirmed         Phase = "TARGET_CONFIRMED"
	PhaseDelivering              Phase = "DELIVERING"
	PhaseReturning               Phase = "RETURNING"
	PhaseLanding                 Phase = "LANDING"
	PhaseCompleted               Phase = "COMPLETED"
	PhaseEmergency               Phase = "EMERGENCY"
	PhaseLocalOperatorControl    Phase = "LOCAL_OPERATOR_CONTROL"
)

// MissionType is carried alongside Phase as an orthogonal guard: several
// transitions share a trigger (e.g. takeoff_success) and are disambiguated by
// MissionType rather than by Phase alone.
type MissionType string

const (
	MissionMOBSearch        MissionType = "MOB_SEARCH"
	MissionStandby          MissionType = "STANDBY"
	MissionPatrol           MissionType = "PATROL"
	MissionOverwatch        MissionType = "OVERWATCH"
	MissionPayloadDelivery  MissionType = "PAYLOAD_DELIVERY"
	MissionIdle             MissionType = "IDLE"
)

// FleetVehicleRecord is the Coordinator's per-drone bookkeeping entry. It is
// owned exclusively by the Coordinator's bus-handler goroutine; no other task
// may mutate it.
type FleetVehicleRecord struct {
	DroneID     string
	Role        Role
	Telemetry   *Telemetry // nil until the first telemetry sample arrives
	Phase       Phase
	LastSeen    time.Time
}

// Detection is produced by the external detector subsystem and consumed
// opaquely by the state machine to drive target-sighted transitions.
type Detection struct {
	PixelX, PixelY int
	WorldPos       *Position // nil if no geolocation was available
	Confidence     float64   // [0, 1]
	IsPerson       bool
	Source         string
	Metadata       map[string]string
}
