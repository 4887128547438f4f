package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dokzlo13/relayd/internal/agent"
)

type published struct {
	topic    string
	retained bool
	payload  any
}

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type fakeClient struct {
	paho.Client

	mu        sync.Mutex
	connected bool
	messages  []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, retained: retained, payload: payload})
	return fakeToken{}
}

type fakeMessage struct {
	paho.Message
	payload  []byte
	retained bool
}

func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Retained() bool  { return m.retained }

type fakeAgent struct {
	snap  agent.Snapshot
	calls chan bool
}

func (a *fakeAgent) Snapshot() agent.Snapshot         { return a.snap }
func (a *fakeAgent) OnChange(fn func(agent.Snapshot)) {}
func (a *fakeAgent) SetRelay(ctx context.Context, on bool, source string) error {
	a.calls <- on
	return nil
}

func newTestBridge() (*Bridge, *fakeClient, *fakeAgent) {
	a := &fakeAgent{calls: make(chan bool, 4)}
	b := New(Options{TopicPrefix: "relayd"}, a)
	c := &fakeClient{connected: true}
	b.client = c
	return b, c, a
}

func TestPublishSnapshot(t *testing.T) {
	b, c, _ := newTestBridge()

	b.publishSnapshot(agent.Snapshot{Phase: "synchronized", DeviceID: 7, RelayOn: true})

	if len(c.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(c.messages))
	}
	state := c.messages[0]
	if state.topic != "relayd/state" || !state.retained {
		t.Errorf("state message = %+v", state)
	}
	var got agent.Snapshot
	if err := json.Unmarshal(state.payload.([]byte), &got); err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != 7 || got.Phase != "synchronized" {
		t.Errorf("snapshot = %+v", got)
	}
	if relay := c.messages[1]; relay.topic != "relayd/relay" || relay.payload != "ON" {
		t.Errorf("relay message = %+v", relay)
	}
}

func TestPublishSnapshot_Disconnected(t *testing.T) {
	b, c, _ := newTestBridge()
	c.connected = false

	b.publishSnapshot(agent.Snapshot{})
	if len(c.messages) != 0 {
		t.Errorf("published %d messages while disconnected", len(c.messages))
	}
}

func TestOnCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"ON", true},
		{"1", true},
		{"true", true},
		{"OFF", false},
		{"0", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			b, _, a := newTestBridge()
			b.onCommand(nil, fakeMessage{payload: []byte(tt.payload)})

			select {
			case got := <-a.calls:
				if got != tt.want {
					t.Errorf("on = %v, want %v", got, tt.want)
				}
			case <-time.After(time.Second):
				t.Fatal("command was not applied")
			}
		})
	}
}

func TestOnCommand_IgnoresRetained(t *testing.T) {
	b, _, a := newTestBridge()
	b.onCommand(nil, fakeMessage{payload: []byte("ON"), retained: true})

	select {
	case <-a.calls:
		t.Fatal("retained command must be ignored")
	case <-time.After(50 * time.Millisecond):
	}
}
