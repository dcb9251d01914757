package flightctl

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// stepInterval is how often Simulated advances position/altitude/battery
// toward their current targets, mirroring the per-tick movement in
// original_source/v_0.1/src/hardware/flight_controller.py's SimulatedFlightController
// (1m per step there was driven by the caller's own poll loop; here a
// background ticker drives it so Telemetry() is always fresh without the
// caller needing to pump the simulation).
const stepInterval = 200 * time.Millisecond

const metersPerStep = 1.0
const climbMetersPerStep = 0.5
const batteryDrainPerStep = 0.01

// Simulated is an in-process stand-in for a drone's flight controller, used
// for every drone.type == simulated entry in the fleet roster.
type Simulated struct {
	mu        sync.Mutex
	droneID   string
	logger    *slog.Logger
	connected bool
	armed     bool
	mode      model.VehicleMode
	led       model.LEDColor
	battery   float64
	pos       model.Position
	targetPos model.Position
	home      model.Position

	stop chan struct{}
	done chan struct{}
}

// NewSimulated constructs a Simulated controller starting at the origin,
// which doubles as its home/launch position.
func NewSimulated(droneID string, logger *slog.Logger) *Simulated {
	return &Simulated{
		droneID: droneID,
		logger:  logger,
		mode:    model.ModeDisarmed,
		led:     model.LEDOff,
		battery: 100,
	}
}

func (s *Simulated) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.logger.Info("simulated flight controller connected", "drone_id", s.droneID)
	go s.stepLoop(stop, done)
	return nil
}

func (s *Simulated) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.Warn("simulated flight controller stop timed out", "drone_id", s.droneID)
	}
	return nil
}

func (s *Simulated) stepLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Simulated) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case model.ModeTakingOff:
		s.pos.Z += climbMetersPerStep
		if s.pos.Z >= s.targetPos.Z {
			s.pos.Z = s.targetPos.Z
			s.mode = model.ModeGuided
		}
	case model.ModeLanding:
		s.pos.Z -= climbMetersPerStep
		if s.pos.Z <= 0 {
			s.pos.Z = 0
			s.mode = model.ModeDisarmed
			s.armed = false
		}
	case model.ModeGuided:
		dx := s.targetPos.X - s.pos.X
		dy := s.targetPos.Y - s.pos.Y
		dz := s.targetPos.Z - s.pos.Z
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist > metersPerStep {
			s.pos.X += dx / dist * metersPerStep
			s.pos.Y += dy / dist * metersPerStep
			s.pos.Z += dz / dist * metersPerStep
		} else {
			s.pos = s.targetPos
		}
	}

	if s.armed && s.battery > 0 {
		s.battery -= batteryDrainPerStep
		if s.battery < 0 {
			s.battery = 0
		}
	}
}

func (s *Simulated) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.mode = model.ModeArmed
	return nil
}

func (s *Simulated) Disarm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.mode = model.ModeDisarmed
	return nil
}

func (s *Simulated) Takeoff(ctx context.Context, altitude float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.targetPos = model.Position{X: s.pos.X, Y: s.pos.Y, Z: altitude}
	s.mode = model.ModeTakingOff
	return nil
}

func (s *Simulated) GoTo(ctx context.Context, pos model.Position, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetPos = pos
	s.mode = model.ModeGuided
	return nil
}

func (s *Simulated) Land(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = model.ModeLanding
	return nil
}

func (s *Simulated) ReturnToHome(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetPos = model.Position{X: s.home.X, Y: s.home.Y, Z: s.pos.Z}
	s.mode = model.ModeGuided
	return nil
}

func (s *Simulated) SetLED(ctx context.Context, color model.LEDColor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = color
	return nil
}

func (s *Simulated) Telemetry() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Telemetry{
		Position:      s.pos,
		BatteryPct:    s.battery,
		Mode:          s.mode,
		LED:           s.led,
		Connected:     s.connected,
		LastHeartbeat: time.Now(),
	}
}

func (s *Simulated) IsArmable() bool { return true }
