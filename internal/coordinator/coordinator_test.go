package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-ops/mobfleet/internal/bus"
	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
	"github.com/skyward-ops/mobfleet/internal/searchgrid"
)

type recordingBroadcaster struct {
	frames      []Frame
	videoStarts []string
	videoStops  []string
}

func (r *recordingBroadcaster) Broadcast(f Frame)          { r.frames = append(r.frames, f) }
func (r *recordingBroadcaster) StartVideoStream(id string) { r.videoStarts = append(r.videoStarts, id) }
func (r *recordingBroadcaster) StopVideoStream(id string)  { r.videoStops = append(r.videoStops, id) }

func testCoordinator(b bus.Bus, broadcaster Broadcaster) *Coordinator {
	cfg := config.Default()
	grid := searchgrid.New(searchgrid.Config{
		GridSize: 4, SearchAreaSizeM: 400, SearchAltitude: 50,
		RMax: 80, HRef: 30, MissProbability: 0.1,
	}, searchgrid.Area{}, obslog.New("text", "error"))
	return New(Deps{
		Bus: b, Grid: grid, Config: cfg,
		Logger: obslog.New("text", "error"), Broadcaster: broadcaster,
	})
}

func TestHandleConnectSetsKnownDroneIdleAndIgnoresUnknown(t *testing.T) {
	c := testCoordinator(bus.NewMemory(), &recordingBroadcaster{})
	c.roster["scout_1"].Phase = model.PhaseEmergency

	payload, _ := json.Marshal(map[string]any{"drone_id": "scout_1", "role": "scout"})
	c.handleConnect(payload)
	assert.Equal(t, model.PhaseIdle, c.roster["scout_1"].Phase)

	payload, _ = json.Marshal(map[string]any{"drone_id": "ghost", "role": "scout"})
	c.handleConnect(payload) // must not panic, must not add a roster entry
	_, exists := c.roster["ghost"]
	assert.False(t, exists)
}

func TestHandleTelemetryUpdatesMapWhenCentralizedAndSearching(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := testCoordinator(bus.NewMemory(), bc)
	c.roster["scout_1"].Phase = model.PhaseRoleSearchPrimary

	// (-150,-150) is the center of cell (0,0), the argmax of the uniform grid.
	firstCell := model.Position{X: -150, Y: -150, Z: 50}
	payload, _ := json.Marshal(map[string]any{
		"drone_id": "scout_1", "mission_phase": "ROLE_SEARCH_PRIMARY",
		"telemetry": model.Telemetry{Position: firstCell},
	})
	c.handleTelemetry("scout_1", payload)

	assert.InDelta(t, 1.0, c.grid.Sum(), 1e-6)
	assert.NotEqual(t, firstCell, c.grid.GetNextSearchWaypoint(), "a no-detection update from a searching drone should perturb the grid")
	require.Len(t, bc.frames, 1)
	assert.Equal(t, "telemetry", bc.frames[0].Type)
}

func TestHandleStateStopsVideoOnLeavingOverwatch(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := testCoordinator(bus.NewMemory(), bc)
	c.roster["utility_1"].Phase = model.PhaseRoleEmergencyEyes
	c.overwatchDrone = "utility_1"

	payload, _ := json.Marshal(map[string]any{"state": "RETURNING", "drone_id": "utility_1", "role": "utility"})
	c.handleState("utility_1", payload)

	assert.Equal(t, model.PhaseReturning, c.roster["utility_1"].Phase)
	assert.Equal(t, []string{"utility_1"}, bc.videoStops)
	assert.Equal(t, "", c.overwatchDrone)
}

func TestHandleEventPendingConfirmationForwardsToBroadcaster(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := testCoordinator(bus.NewMemory(), bc)

	payload, _ := json.Marshal(map[string]any{
		"type": "PENDING_CONFIRMATION", "position": model.Position{X: 5, Y: 5, Z: 0}, "confidence": 0.9,
	})
	c.handleEvent("scout_1", payload)

	require.Len(t, bc.frames, 1)
	assert.Equal(t, "PENDING_CONFIRMATION", bc.frames[0].Type)
}

func TestHandleEventAIDetectionLocksGridToReportedPosition(t *testing.T) {
	c := testCoordinator(bus.NewMemory(), &recordingBroadcaster{})
	payload, _ := json.Marshal(map[string]any{
		"type": "AI_DETECTION", "position": model.Position{X: 5, Y: 5, Z: 0},
	})
	c.handleEvent("scout_1", payload)
	assert.InDelta(t, 1.0, c.grid.Sum(), 1e-9, "a confirmed detection should zero every cell but one")
	assert.Equal(t, model.Position{X: 50, Y: 50, Z: 50}, c.grid.GetNextSearchWaypoint(), "the surviving cell should be the one containing the reported position")
}

func TestTriggerMOBModeAssignsScoutAndWarnsWithoutPayload(t *testing.T) {
	bc := &recordingBroadcaster{}
	b := bus.NewMemory()
	c := testCoordinator(b, bc)
	c.roster["payload_1"].Phase = model.PhaseEmergency // not ready for delivery

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, "drone/command/scout_1")
	require.NoError(t, err)

	c.TriggerMOBMode()

	assert.Equal(t, "scout_1", c.assignedScout)
	foundWarning := false
	for _, f := range bc.frames {
		if f.Type == "WARNING" {
			foundWarning = true
		}
	}
	assert.True(t, foundWarning, "expected a WARNING frame when no payload drone is ready")

	select {
	case msg := <-ch:
		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &body))
		assert.Equal(t, "START_MISSION", body["command"])
		assert.Equal(t, "MOB_EMERGENCY", body["type"])
	case <-time.After(time.Second):
		t.Fatal("expected START_MISSION on drone/command/scout_1")
	}

	c.mu.Lock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	c.mu.Unlock()
}

func TestTriggerMOBModeFailsOverToUtilityWhenNoScoutAvailable(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := testCoordinator(bus.NewMemory(), bc)
	c.roster["scout_1"].Phase = model.PhaseEmergency

	c.TriggerMOBMode()
	assert.Equal(t, "utility_1", c.assignedScout)

	c.mu.Lock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	c.mu.Unlock()
}

func TestConfirmTargetPublishesConfirmationEvent(t *testing.T) {
	b := bus.NewMemory()
	bc := &recordingBroadcaster{}
	c := testCoordinator(b, bc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, "fleet/event/confirmation")
	require.NoError(t, err)

	c.ConfirmTarget("scout_1")

	select {
	case msg := <-ch:
		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &body))
		assert.Equal(t, "scout_1", body["drone_id"])
		assert.Equal(t, "OPERATOR_CONFIRM_TARGET", body["type"])
	case <-time.After(time.Second):
		t.Fatal("expected fleet/event/confirmation to be published")
	}
	require.Len(t, bc.frames, 1)
	assert.Equal(t, "TARGET_CONFIRMED", bc.frames[0].Type)
}
