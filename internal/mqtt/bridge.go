// Package mqtt mirrors the agent snapshot to an MQTT broker and accepts
// manual relay commands.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/status      online|offline (retained, last will)
//	<prefix>/state       JSON snapshot (retained)
//	<prefix>/relay       ON|OFF (retained)
//	<prefix>/relay/set   command: ON|OFF|1|0|true|false
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/controller"
	"github.com/dokzlo13/relayd/internal/eventbus"
)

const commandTimeout = 30 * time.Second

// Agent is the part of the sync loop the bridge mirrors and drives.
type Agent interface {
	Snapshot() agent.Snapshot
	SetRelay(ctx context.Context, on bool, source string) error
	OnChange(fn func(agent.Snapshot))
}

// Options configures a Bridge.
type Options struct {
	Broker      string
	User        string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Bridge is the MQTT mirror.
type Bridge struct {
	opts   Options
	agent  Agent
	client paho.Client
	ctx    context.Context

	// Commands are applied in arrival order on the bus worker
	commands *eventbus.Bus
}

// New creates a bridge. Nothing connects until Run.
func New(opts Options, a Agent) *Bridge {
	b := &Bridge{
		opts:     opts,
		agent:    a,
		ctx:      context.Background(),
		commands: eventbus.New(),
	}
	b.commands.Subscribe(eventbus.EventTypeRelayCommand, b.applyCommand)
	return b
}

func (b *Bridge) availabilityTopic() string { return b.opts.TopicPrefix + "/status" }
func (b *Bridge) stateTopic() string        { return b.opts.TopicPrefix + "/state" }
func (b *Bridge) relayTopic() string        { return b.opts.TopicPrefix + "/relay" }
func (b *Bridge) commandTopic() string      { return b.opts.TopicPrefix + "/relay/set" }

// Run connects to the broker and mirrors state until ctx is cancelled.
// Connection failures are retried in the background by the client.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx = ctx

	opts := paho.NewClientOptions()
	opts.AddBroker(b.opts.Broker)
	opts.SetUsername(b.opts.User)
	opts.SetPassword(b.opts.Password)
	opts.SetClientID(b.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetWill(b.availabilityTopic(), "offline", 1, true)

	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Info().Str("broker", b.opts.Broker).Msg("Connected to MQTT")
		c.Publish(b.availabilityTopic(), 1, true, "online")

		if token := c.Subscribe(b.commandTopic(), 1, b.onCommand); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", b.commandTopic()).Msg("MQTT subscribe failed")
		}
		b.publishSnapshot(b.agent.Snapshot())
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	b.client = paho.NewClient(opts)
	b.agent.OnChange(b.publishSnapshot)

	log.Info().Str("broker", b.opts.Broker).Str("prefix", b.opts.TopicPrefix).Msg("Starting MQTT mirror")
	b.client.Connect()

	<-ctx.Done()

	if b.client.IsConnected() {
		token := b.client.Publish(b.availabilityTopic(), 1, true, "offline")
		token.WaitTimeout(2 * time.Second)
	}
	b.client.Disconnect(250)

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.commands.Close(closeCtx)

	log.Info().Msg("MQTT mirror stopped")
	return nil
}

// publishSnapshot is called on the agent loop goroutine and must not block.
func (b *Bridge) publishSnapshot(s agent.Snapshot) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode snapshot")
		return
	}
	b.client.Publish(b.stateTopic(), 0, true, payload)
	b.client.Publish(b.relayTopic(), 0, true, onOff(s.RelayOn))
}

func (b *Bridge) onCommand(_ paho.Client, msg paho.Message) {
	if msg.Retained() {
		// Stale commands must not switch the relay on reconnect
		return
	}
	payload := string(msg.Payload())
	b.commands.Publish(eventbus.Event{
		Type:   eventbus.EventTypeRelayCommand,
		Source: "mqtt",
		Data: map[string]any{
			"on":      controller.Truthy(payload),
			"payload": payload,
		},
	})
}

func (b *Bridge) applyCommand(e eventbus.Event) {
	on := e.Bool("on")

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.agent.SetRelay(ctx, on, e.Source); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("MQTT relay command failed")
		return
	}
	log.Info().Interface("payload", e.Data["payload"]).Bool("on", on).Msg("MQTT relay command applied")
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
