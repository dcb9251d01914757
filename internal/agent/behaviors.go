package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// behaviorSupervisor watches phaseCh and runs exactly one role-specific entry
// behavior at a time: a new phase cancels whatever behavior the previous
// phase started before launching the next one, per spec.md §4.4's
// "role-specific state entry behaviors" list.
func (a *Agent) behaviorSupervisor(ctx context.Context) error {
	var cancel context.CancelFunc
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	for phase := range channerics.OrDone(ctx.Done(), a.phaseCh) {
		if cancel != nil {
			cancel()
		}
		var bctx context.Context
		bctx, cancel = context.WithCancel(ctx)
		behavior := a.behaviorFor(phase)
		if behavior == nil {
			continue
		}
		go func(ctx context.Context, run func(context.Context)) {
			run(ctx)
		}(bctx, behavior)
	}
	return nil
}

// arrivalTolerance is how close Telemetry().Position must get to a
// commanded target for flyTo to consider the leg complete.
const arrivalTolerance = 0.5

// flyTo commands a GoTo and blocks until the controller reports arrival (or
// ctx is cancelled), polling every 100ms via waitUntil so a
// search/patrol/delivery leg never scans or hovers before the drone has
// actually moved.
func (a *Agent) flyTo(ctx context.Context, pos model.Position, speed float64) error {
	if err := a.controller.GoTo(ctx, pos, speed); err != nil {
		return err
	}
	return a.waitUntil(ctx, func() bool {
		return a.controller.Telemetry().Position.DistanceTo(pos) <= arrivalTolerance
	})
}

func (a *Agent) behaviorFor(phase model.Phase) func(context.Context) {
	switch phase {
	case model.PhasePreflight:
		return a.runPreflight
	case model.PhaseTakeoff:
		return a.runTakeoff
	case model.PhaseRoleSearchPrimary:
		return a.runSearchPrimary
	case model.PhaseRoleSearchAssist:
		return a.runSearchAssist
	case model.PhaseRoleEmergencyStandby:
		return a.runEmergencyStandby
	case model.PhaseRoleUtilityTask:
		return a.runUtilityTask
	case model.PhaseRoleEmergencyEyes:
		return a.runEmergencyEyes
	case model.PhaseDelivering:
		return a.runDelivering
	case model.PhaseReturning:
		return a.runReturning
	case model.PhaseLanding:
		return a.runLanding
	case model.PhaseCompleted:
		return a.runCompleted
	case model.PhaseEmergency:
		return a.runEmergency
	default:
		return nil
	}
}

func (a *Agent) runPreflight(ctx context.Context) {
	t := a.controller.Telemetry()
	if t.BatteryPct < a.health.MinBatteryPreflight {
		a.logger.Warn("preflight check failed, battery below threshold", "battery", t.BatteryPct)
		return
	}
	if err := a.controller.Arm(ctx); err != nil {
		a.logger.Warn("arm failed during preflight", "error", err)
		return
	}
	a.machine.Fire("preflight_success")
}

func (a *Agent) runTakeoff(ctx context.Context) {
	altitude := a.search.Area.Z
	if altitude == 0 {
		altitude = a.probCfg.SearchAltitude
	}
	if err := a.controller.Takeoff(ctx, altitude); err != nil {
		a.logger.Warn("takeoff failed", "error", err)
		return
	}
	a.machine.Fire("takeoff_success")
}

// runSearchPrimary implements spec.md §4.4's scout search loop: evolve,
// query a waypoint, fly, scan, update, publish, repeat until a detection.
func (a *Agent) runSearchPrimary(ctx context.Context) {
	a.controller.SetLED(ctx, model.LEDBlue)
	if a.grid != nil {
		a.grid.InitializeMap()
	}
	const evolveDtS = 1.0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.grid != nil {
			a.grid.EvolveMap(evolveDtS)
		}
		waypoint := a.nextWaypoint()
		if err := a.flyTo(ctx, waypoint, 5); err != nil {
			a.logger.Warn("goto failed in search loop", "error", err)
			return
		}

		det, err := a.detector.Detect(ctx, waypoint)
		if err != nil {
			a.logger.Warn("detector error", "error", err)
		}
		hasDetection := det != nil && det.IsPerson
		if hasDetection {
			a.setLastDetections([]model.Detection{*det})
			if a.metrics != nil {
				a.metrics.DetectionsTotal.WithLabelValues(a.droneID, det.Source).Inc()
			}
		}

		if a.grid != nil {
			a.grid.UpdateMap(waypoint, a.probCfg.SearchAltitude, hasDetection)
		}
		a.publishMapUpdate(waypoint, a.probCfg.SearchAltitude, hasDetection)

		if !hasDetection {
			continue
		}

		pos := waypoint
		if det.WorldPos != nil {
			pos = *det.WorldPos
		}
		a.pendingTarget = pos
		if _, ok := a.machine.Fire("target_sighted"); ok {
			payload, _ := json.Marshal(map[string]any{
				"type":       "PENDING_CONFIRMATION",
				"position":   pos,
				"confidence": det.Confidence,
			})
			a.bus.Publish(fmt.Sprintf("fleet/event/%s", a.droneID), payload, false)
		}
		return
	}
}

func (a *Agent) nextWaypoint() model.Position {
	if a.grid != nil {
		return a.grid.GetNextSearchWaypoint()
	}
	return a.search.Area
}

func (a *Agent) publishMapUpdate(pos model.Position, altitude float64, hasDetection bool) {
	payload, _ := json.Marshal(map[string]any{
		"drone_id":      a.droneID,
		"position":      pos,
		"altitude":      altitude,
		"has_detection": hasDetection,
	})
	if err := a.bus.Publish("fleet/map/update", payload, false); err != nil {
		a.logger.Warn("failed to publish map update", "error", err)
	}
}

// runSearchAssist is the utility drone's contribution to a search: a
// lawnmower sweep feeding the same confirm/publish handoff as the scout.
func (a *Agent) runSearchAssist(ctx context.Context) {
	a.controller.SetLED(ctx, model.LEDBlue)
	legs := lawnmowerLegs(a.home, a.lawn)
	for _, wp := range legs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := a.flyTo(ctx, wp, 5); err != nil {
			a.logger.Warn("goto failed in search-assist sweep", "error", err)
			return
		}

		det, err := a.detector.Detect(ctx, wp)
		if err != nil {
			a.logger.Warn("detector error", "error", err)
			continue
		}
		if det == nil || !det.IsPerson {
			a.publishMapUpdate(wp, a.lawn.PatrolAltitude, false)
			continue
		}

		a.setLastDetections([]model.Detection{*det})
		if a.metrics != nil {
			a.metrics.DetectionsTotal.WithLabelValues(a.droneID, det.Source).Inc()
		}
		pos := wp
		if det.WorldPos != nil {
			pos = *det.WorldPos
		}
		a.pendingTarget = pos
		a.publishMapUpdate(wp, a.lawn.PatrolAltitude, true)
		if _, ok := a.machine.Fire("target_sighted"); ok {
			payload, _ := json.Marshal(map[string]any{
				"type":       "PENDING_CONFIRMATION",
				"position":   pos,
				"confidence": det.Confidence,
			})
			a.bus.Publish(fmt.Sprintf("fleet/event/%s", a.droneID), payload, false)
		}
		return
	}
	a.machine.Fire("search_complete_negative")
}

// runEmergencyStandby holds at a standby waypoint until fleet/event/target_found
// or an operator-confirmed delivery request arrives.
func (a *Agent) runEmergencyStandby(ctx context.Context) {
	standby := a.search.Area
	standby.Z = a.hover.AltitudeOffset
	if standby.Z == 0 {
		standby.Z = a.probCfg.SearchAltitude
	}
	if err := a.flyTo(ctx, standby, 3); err != nil {
		a.logger.Warn("goto failed entering standby", "error", err)
		return
	}
	a.controller.SetLED(ctx, model.LEDYellow)
	<-ctx.Done()
}

// runUtilityTask is the lawnmower patrol of ROLE_UTILITY_TASK: battery is
// checked every leg against the patrol-RTL threshold.
func (a *Agent) runUtilityTask(ctx context.Context) {
	a.controller.SetLED(ctx, model.LEDGreen)
	legs := lawnmowerLegs(a.home, a.lawn)
	for _, wp := range legs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if a.controller.Telemetry().BatteryPct <= a.health.MinBatteryPatrolRTL {
			a.machine.Fire("patrol_battery_low")
			return
		}
		if err := a.flyTo(ctx, wp, 5); err != nil {
			a.logger.Warn("goto failed during patrol", "error", err)
			return
		}
	}
	a.machine.Fire("patrol_complete")
}

// runEmergencyEyes orbits the pending target using the orbit flight strategy.
func (a *Agent) runEmergencyEyes(ctx context.Context) {
	center := a.pendingTarget
	center.Z += a.orbit.AltitudeOffset
	a.controller.SetLED(ctx, model.LEDBlue)

	angle := 0.0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			angle += a.orbit.Speed * 0.5 / math.Max(a.orbit.Radius, 1)
			wp := model.Position{
				X: center.X + a.orbit.Radius*math.Cos(angle),
				Y: center.Y + a.orbit.Radius*math.Sin(angle),
				Z: center.Z,
			}
			if err := a.controller.GoTo(ctx, wp, a.orbit.Speed); err != nil {
				a.logger.Warn("goto failed in orbit", "error", err)
				return
			}
		}
	}
}

// runDelivering flies to the confirmed target, holds there while it signals
// the LED sequence, then fires delivery_complete, which sends the drone home
// (RETURNING) to land there; it does not land at the target.
func (a *Agent) runDelivering(ctx context.Context) {
	target := a.pendingTarget
	target.Z += a.hover.AltitudeOffset
	if err := a.flyTo(ctx, target, 5); err != nil {
		a.logger.Warn("goto failed flying to delivery target", "error", err)
		return
	}

	for _, color := range []model.LEDColor{model.LEDRed, model.LEDOff, model.LEDRed, model.LEDOff, model.LEDGreen} {
		select {
		case <-ctx.Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		a.controller.SetLED(ctx, color)
	}

	a.machine.Fire("delivery_complete")
}

func (a *Agent) runReturning(ctx context.Context) {
	if err := a.controller.ReturnToHome(ctx); err != nil {
		a.logger.Warn("return-to-home failed", "error", err)
		return
	}
	if err := a.waitUntil(ctx, func() bool {
		pos := a.controller.Telemetry().Position
		return math.Hypot(pos.X-a.home.X, pos.Y-a.home.Y) <= arrivalTolerance
	}); err != nil {
		return
	}
	a.machine.Fire("arrived_home")
}

func (a *Agent) runLanding(ctx context.Context) {
	if err := a.controller.Land(ctx); err != nil {
		a.logger.Warn("land failed", "error", err)
		return
	}
	if err := a.waitUntil(ctx, func() bool {
		return a.controller.Telemetry().Position.Z <= arrivalTolerance
	}); err != nil {
		return
	}
	a.machine.Fire("land_complete")
}

// waitUntil polls done every 100ms until it reports true or ctx ends.
func (a *Agent) waitUntil(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) runCompleted(ctx context.Context) {
	a.controller.Disarm(ctx)
	a.controller.SetLED(ctx, model.LEDOff)
	a.machine.Fire("mission_finished")
}

func (a *Agent) runEmergency(ctx context.Context) {
	a.controller.SetLED(ctx, model.LEDRed)
	if err := a.controller.Land(ctx); err != nil {
		a.logger.Warn("emergency land failed", "error", err)
	}
	a.machine.Fire("reset_from_emergency")
}
