package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skyward-ops/mobfleet/internal/config"
	"github.com/skyward-ops/mobfleet/internal/model"
	"github.com/skyward-ops/mobfleet/internal/obslog"
)

type fakeSink struct {
	mobTriggered    bool
	patrolTriggered bool
	overwatchPos    *model.Position
	confirmedDrone  string
	rejectedDrone   string
}

func (f *fakeSink) TriggerMOBMode()    { f.mobTriggered = true }
func (f *fakeSink) TriggerPatrolMode() { f.patrolTriggered = true }
func (f *fakeSink) TriggerOverwatchMode(pos model.Position) { f.overwatchPos = &pos }
func (f *fakeSink) ConfirmTarget(droneID string)            { f.confirmedDrone = droneID }
func (f *fakeSink) RejectTarget(droneID string)             { f.rejectedDrone = droneID }
func (f *fakeSink) Roster() []model.FleetVehicleRecord      { return nil }

func newTestServer(sink CommandSink) *Server {
	return New(config.GCSConfig{Host: "127.0.0.1", Port: 0}, sink, obslog.New("text", "error"), nil)
}

func TestDispatchInboundRoutesEveryRecognizedFrameType(t *testing.T) {
	sink := &fakeSink{}
	s := newTestServer(sink)

	s.dispatchInbound([]byte(`{"type":"TRIGGER_MOB_MODE"}`))
	assert.True(t, sink.mobTriggered)

	s.dispatchInbound([]byte(`{"type":"TRIGGER_PATROL_MODE"}`))
	assert.True(t, sink.patrolTriggered)

	s.dispatchInbound([]byte(`{"type":"CONFIRM_TARGET","data":{"drone_id":"scout_1"}}`))
	assert.Equal(t, "scout_1", sink.confirmedDrone)

	s.dispatchInbound([]byte(`{"type":"REJECT_TARGET","data":{"drone_id":"scout_2"}}`))
	assert.Equal(t, "scout_2", sink.rejectedDrone)

	s.dispatchInbound([]byte(`{"type":"TRIGGER_OVERWATCH_MODE","data":{"position":{"X":1,"Y":2,"Z":3}}}`))
	assert.Equal(t, &model.Position{X: 1, Y: 2, Z: 3}, sink.overwatchPos)
}

func TestDispatchInboundIgnoresUnknownTypeAndMalformedJSON(t *testing.T) {
	sink := &fakeSink{}
	s := newTestServer(sink)

	s.dispatchInbound([]byte(`not json`))
	s.dispatchInbound([]byte(`{"type":"SOMETHING_ELSE"}`))

	assert.False(t, sink.mobTriggered)
	assert.False(t, sink.patrolTriggered)
	assert.Equal(t, "", sink.confirmedDrone)
}

func TestVideoFrameSkippedWithoutConnectedClients(t *testing.T) {
	s := newTestServer(&fakeSink{})
	s.hub.startStream("scout_1")
	// No clients connected: broadcast must be skipped, not panic.
	s.VideoFrame("scout_1", []byte{0xFF, 0xD8})
}
