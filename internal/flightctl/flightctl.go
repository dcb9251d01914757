// Package flightctl is the narrow boundary between the mission kernel and a
// drone's flight controller — simulated for development, MAVLink-backed for
// real hardware — grounded in original_source/v_0.1/src/hardware/flight_controller.py's
// FlightController abstract base class and the teacher's internal/mavlink.Client.
// Flight hardware is an external collaborator the mission kernel commands but
// does not own; every method here is context-aware so a stuck link can be
// cancelled from the agent's supervising errgroup.
package flightctl

import (
	"context"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// Controller is implemented by every flight-controller backend an agent can
// drive. Positions are in the mission kernel's local planar frame (meters,
// Z up), not geodetic coordinates; each backend is responsible for whatever
// frame conversion its hardware requires.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error

	Takeoff(ctx context.Context, altitude float64) error
	GoTo(ctx context.Context, pos model.Position, speed float64) error
	Land(ctx context.Context) error
	ReturnToHome(ctx context.Context) error

	SetLED(ctx context.Context, color model.LEDColor) error

	// Telemetry returns the most recently observed vehicle state. It never
	// blocks on the link; callers poll it on their own cadence.
	Telemetry() model.Telemetry

	IsArmable() bool
}
