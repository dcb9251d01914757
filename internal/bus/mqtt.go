package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skyward-ops/mobfleet/internal/errs"
)

// queueDepth bounds each subscription's channel (spec.md §3: "a bounded
// queue (default: 1024 messages)").
const queueDepth = 1024

// telemetryPrefix identifies the one topic family the queue overflow policy
// treats specially: dropping the oldest buffered sample is safe for
// telemetry (a newer position supersedes an older one), but would silently
// erase a fleet/event/* that a caller is relying on to fire a transition.
const telemetryPrefix = "fleet/telemetry/"

// MQTT is a Bus backed by an MQTT v3.1.1 broker via paho.mqtt.golang.
type MQTT struct {
	client mqtt.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs []*subscription
}

type subscription struct {
	filter string
	out    chan Message
}

// NewMQTT builds an MQTT bus pointed at brokerAddr (e.g. "tcp://localhost:1883").
func NewMQTT(brokerAddr, clientID string, logger *slog.Logger) *MQTT {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerAddr).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetKeepAlive(10 * time.Second)

	b := &MQTT{logger: logger}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		b.logger.Info("mqtt connected")
	})
	b.client = mqtt.NewClient(opts)
	return b
}

func (b *MQTT) Connect(ctx context.Context) error {
	token := b.client.Connect()
	deadline, ok := ctx.Deadline()
	var waitErr bool
	if ok {
		waitErr = !token.WaitTimeout(time.Until(deadline))
	} else {
		token.Wait()
	}
	if waitErr {
		return fmt.Errorf("mqtt connect: %w", context.DeadlineExceeded)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (b *MQTT) Disconnect() {
	b.client.Disconnect(250)
}

func (b *MQTT) Publish(topic string, payload []byte, retain bool) error {
	if !b.client.IsConnected() {
		return errs.ErrBusDisconnected
	}
	token := b.client.Publish(topic, 1, retain, payload)
	token.Wait()
	return token.Error()
}

func (b *MQTT) Subscribe(ctx context.Context, topicFilter string) (<-chan Message, error) {
	if !b.client.IsConnected() {
		return nil, errs.ErrBusDisconnected
	}

	sub := &subscription{filter: topicFilter, out: make(chan Message, queueDepth)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		b.deliver(sub, Message{Topic: msg.Topic(), Payload: msg.Payload()})
	}

	token := b.client.Subscribe(topicFilter, 1, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topicFilter, err)
	}

	go func() {
		<-ctx.Done()
		b.client.Unsubscribe(topicFilter)
		close(sub.out)
	}()

	return sub.out, nil
}

// deliver enqueues msg on sub.out, applying the overflow policy: telemetry
// topics drop the oldest queued sample to make room, everything else drops
// the incoming message and logs a warning so a caller can notice backpressure
// on a channel whose ordering it depends on.
func (b *MQTT) deliver(sub *subscription, msg Message) {
	select {
	case sub.out <- msg:
		return
	default:
	}

	if strings.HasPrefix(msg.Topic, telemetryPrefix) {
		select {
		case <-sub.out:
		default:
		}
		select {
		case sub.out <- msg:
		default:
		}
		return
	}

	b.logger.Warn("bus queue full, dropping message", "topic", msg.Topic, "filter", sub.filter)
}
