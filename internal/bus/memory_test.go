package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversMatchingWildcardTopic(t *testing.T) {
	b := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "fleet/telemetry/+")
	require.NoError(t, err)

	require.NoError(t, b.Publish("fleet/telemetry/scout_1", []byte("t1"), false))
	require.NoError(t, b.Publish("fleet/state/scout_1", []byte("s1"), false))

	select {
	case msg := <-ch:
		assert.Equal(t, "fleet/telemetry/scout_1", msg.Topic)
		assert.Equal(t, []byte("t1"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected a delivered message")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected second message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusClosesChannelOnContextCancel(t *testing.T) {
	b := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "fleet/event/+")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was never closed")
	}
}

func TestMemoryBusTelemetryOverflowDropsOldest(t *testing.T) {
	b := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "fleet/telemetry/scout_1")
	require.NoError(t, err)

	for i := 0; i < queueDepth+5; i++ {
		require.NoError(t, b.Publish("fleet/telemetry/scout_1", []byte{byte(i)}, false))
	}

	first := <-ch
	assert.Equal(t, byte(5), first.Payload[0], "the oldest 5 samples should have been dropped to make room")
}

func TestTopicMatchesSingleLevelWildcard(t *testing.T) {
	assert.True(t, topicMatches("fleet/telemetry/+", "fleet/telemetry/scout_1"))
	assert.False(t, topicMatches("fleet/telemetry/+", "fleet/telemetry/scout_1/extra"))
	assert.False(t, topicMatches("fleet/telemetry/+", "fleet/state/scout_1"))
	assert.True(t, topicMatches("fleet/event/confirmation", "fleet/event/confirmation"))
}
