package bus

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Bus used by package tests: no network, no broker,
// same topic-filter semantics (single-level '+' wildcard) as MQTT.
type Memory struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// NewMemory builds an unconnected in-memory bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*subscription]struct{})}
}

func (m *Memory) Connect(ctx context.Context) error { return nil }

func (m *Memory) Disconnect() {}

func (m *Memory) Publish(topic string, payload []byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		if topicMatches(s.filter, topic) {
			msg := Message{Topic: topic, Payload: payload}
			select {
			case s.out <- msg:
			default:
				if strings.HasPrefix(topic, telemetryPrefix) {
					select {
					case <-s.out:
					default:
					}
					select {
					case s.out <- msg:
					default:
					}
				}
			}
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topicFilter string) (<-chan Message, error) {
	sub := &subscription{filter: topicFilter, out: make(chan Message, queueDepth)}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		close(sub.out)
	}()

	return sub.out, nil
}

// topicMatches implements MQTT single-level wildcard matching for '+';
// multi-level '#' is not used anywhere in this system's topic table.
func topicMatches(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")
	if len(fParts) != len(tParts) {
		return false
	}
	for i, fp := range fParts {
		if fp == "+" {
			continue
		}
		if fp != tParts[i] {
			return false
		}
	}
	return true
}
