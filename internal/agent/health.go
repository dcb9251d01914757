package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// healthMonitor polls the flight controller once a second, drives the
// MANUAL-takeover/release and emergency transitions, and republishes the
// drone's telemetry, per spec.md §4.4 "Health monitor".
func (a *Agent) healthMonitor(ctx context.Context) error {
	ticks := channerics.NewTicker(ctx.Done(), healthTickInterval)
	for range channerics.OrDone(ctx.Done(), ticks) {
		a.healthTick()
	}
	return nil
}

func (a *Agent) healthTick() {
	t := a.controller.Telemetry()
	phase := a.machine.Phase()

	switch {
	case t.Mode == model.ModeManual && phase != model.PhaseLocalOperatorControl:
		a.machine.Fire("local_operator_takeover")
	case t.Mode != model.ModeManual && phase == model.PhaseLocalOperatorControl:
		a.machine.Fire("local_operator_release")
	case phase != model.PhaseLocalOperatorControl && !a.healthy(t):
		a.machine.Fire("trigger_emergency")
	}

	if a.metrics != nil {
		a.metrics.DroneBatteryPct.WithLabelValues(a.droneID).Set(t.BatteryPct)
		connected := 0.0
		if t.Connected && time.Since(t.LastHeartbeat) <= a.health.MaxHeartbeatLatency {
			connected = 1.0
		}
		a.metrics.DroneConnected.WithLabelValues(a.droneID).Set(connected)
	}

	payload, err := json.Marshal(map[string]any{
		"drone_id":      a.droneID,
		"mission_phase": a.machine.Phase(),
		"telemetry":     t,
	})
	if err != nil {
		a.logger.Warn("failed to marshal telemetry snapshot", "error", err)
		return
	}
	if err := a.bus.Publish(fmt.Sprintf("fleet/telemetry/%s", a.droneID), payload, false); err != nil {
		a.logger.Warn("failed to publish telemetry", "error", err)
	}

	if a.telemetryLog != nil {
		if err := a.telemetryLog.LogSnapshot(time.Now(), a.machine.Phase(), a.droneID, t, a.getLastDetections()); err != nil {
			a.logger.Warn("failed to persist telemetry snapshot", "error", err)
		}
	}
}

// healthy implements spec.md §4.4's health predicate: battery above the
// emergency threshold, a recent heartbeat, and a live link.
func (a *Agent) healthy(t model.Telemetry) bool {
	if t.BatteryPct < a.health.MinBatteryEmergency {
		return false
	}
	if !t.Connected {
		return false
	}
	if time.Since(t.LastHeartbeat) > a.health.MaxHeartbeatLatency {
		return false
	}
	return true
}
