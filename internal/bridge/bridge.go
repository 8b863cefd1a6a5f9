// MQTT bridge publishing telemetry and routing inbound commands
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/logging"
	"robosim/internal/telemetry"
)

// Fleet is the simulator surface the bridge publishes from and routes
// commands into.
type Fleet interface {
	Snapshots() []telemetry.RobotState
	SubmitCommand(robotID string, cmd command.Command) error
}

// mqttClient is the subset of the paho client the bridge uses.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Bridge connects the simulator to an MQTT broker. Outbound telemetry is
// published per category topic on its own ticker; inbound command topics
// are routed through the validator into the engines. Broker loss never
// stops the simulation: paho reconnects with bounded exponential backoff
// and the OnConnect hook resubscribes.
type Bridge struct {
	client    mqttClient
	fleetID   string
	fleet     Fleet
	validator *command.Validator
	cfg       config.BrokerConfig
}

// New creates a bridge with reconnect and resubscribe behavior wired into
// the paho client options.
func New(cfg config.BrokerConfig, fleetID string, fleet Fleet, validator *command.Validator) *Bridge {
	b := &Bridge{
		fleetID:   fleetID,
		fleet:     fleet,
		validator: validator,
		cfg:       cfg,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.BackoffInitialMS) * time.Millisecond)
	opts.SetMaxReconnectInterval(time.Duration(cfg.BackoffMaxMS) * time.Millisecond)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.New().Warn("broker connection lost", "err", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logging.New().Info("broker connected", "url", cfg.URL)
		b.subscribe()
	})
	b.client = mqtt.NewClient(opts)
	return b
}

// Connect blocks until the first broker connection attempt resolves.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", b.cfg.URL, err)
	}
	return nil
}

// subscribe attaches the inbound command topics. Called on every
// (re)connect so subscriptions survive broker restarts.
func (b *Bridge) subscribe() {
	log := logging.New()
	for _, category := range []string{telemetry.CategoryCmdVel, telemetry.CategoryMode} {
		topic := telemetry.Topic(category, "+")
		token := b.client.Subscribe(topic, 1, b.handleCommand)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error("subscribe failed", "topic", topic, "err", err)
		}
	}
}

// handleCommand routes one inbound MQTT command message. Rejections are
// logged; there is no synchronous reply channel over the broker.
func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	log := logging.New()
	cm, err := telemetry.DecodeCommand(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed command", "topic", msg.Topic(), "err", err)
		return
	}
	robotID := cm.RobotID
	if robotID == "" {
		robotID = robotIDFromTopic(msg.Topic())
	}
	cmd, err := b.validator.Validate(robotID, cm)
	if err != nil {
		log.Warn("command rejected", "robot_id", robotID, "action", cm.Action, "err", err)
		return
	}
	if err := b.fleet.SubmitCommand(robotID, cmd); err != nil {
		log.Warn("command routing failed", "robot_id", robotID, "err", err)
	}
}

// Run publishes telemetry on the configured interval until the context is
// done, then disconnects.
func (b *Bridge) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	interval := time.Duration(b.cfg.PublishEveryMS) * time.Millisecond
	if interval <= 0 {
		interval = 150 * time.Millisecond
	}
	log.Info("starting broker bridge", "publish_every", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.publishFleet()
		case <-ctx.Done():
			b.client.Disconnect(250)
			return
		}
	}
}

// publishFleet pushes one envelope per category per robot. A disconnected
// broker drops the cycle silently; paho is already reconnecting.
func (b *Bridge) publishFleet() {
	if !b.client.IsConnected() {
		return
	}
	now := time.Now()
	for _, state := range b.fleet.Snapshots() {
		b.publishRobot(&state, now)
	}
}

func (b *Bridge) publishRobot(state *telemetry.RobotState, now time.Time) {
	row := state.Row(b.fleetID, now)
	b.publish(telemetry.CategoryStatus, state.ID, telemetry.MsgTelemetry, row, now)
	b.publish(telemetry.CategoryPose, state.ID, telemetry.MsgPose, state.Pose, now)
	b.publish(telemetry.CategoryBattery, state.ID, telemetry.MsgBattery, state.Battery, now)
	b.publish(telemetry.CategoryHealth, state.ID, telemetry.MsgHealth, map[string]any{
		"score": state.HealthScore,
		"band":  state.HealthBand(),
	}, now)
	b.publish(telemetry.CategoryJoints, state.ID, telemetry.MsgJoints, state.Joints, now)
}

func (b *Bridge) publish(category, robotID, msgType string, payload any, now time.Time) {
	env, err := telemetry.NewEnvelope(msgType, robotID, payload, now)
	if err != nil {
		logging.New().Error("envelope encoding failed", "type", msgType, "err", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	token := b.client.Publish(telemetry.Topic(category, robotID), 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		logging.New().Warn("publish failed", "category", category, "robot_id", robotID, "err", err)
	}
}

// robotIDFromTopic extracts the trailing robot ID from
// robot/<category>/<robot_id>.
func robotIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}
