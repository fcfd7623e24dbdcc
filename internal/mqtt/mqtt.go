// Package mqtt bridges the thermostats to an MQTT broker.
//
// The state of each thermostat is published as a retained JSON message on <prefix>/<id>/state. Commands are received on
// <prefix>/<id>/set/<setting>, where setting is one of mode, temperature, fan or schedule. The payload holds the new value.
package mqtt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
)

const (
	DefaultPrefix = "daikin"
	qos           = 1
	waitTimeout   = 10 * time.Second
)

type Controller interface {
	Thermostats() []thermostat.Thermostat
	CurrentState(id string) (thermostat.State, error)
	SetHVACMode(ctx context.Context, id string, mode daikin.Mode) error
	SetTemperature(ctx context.Context, id string, temperature float64) error
	SetFanMode(ctx context.Context, id string, fanMode string) error
	SetSchedule(ctx context.Context, id string, enabled bool) error
}

// Client is the subset of mqtt.Client used by the Bridge.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type Config struct {
	Broker   string
	Username string
	Password string
	Prefix   string
}

type Bridge struct {
	client     Client
	controller Controller
	poller     poller.Poller
	prefix     string
	logger     *slog.Logger
	commands   chan Command
}

// New returns a Bridge that connects to the configured broker.
func New(cfg Config, c Controller, p poller.Poller, logger *slog.Logger) *Bridge {
	b := newBridge(nil, cfg.Prefix, c, p, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("daikin-" + randomID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(waitTimeout)
	opts.SetWill(b.prefix+"/status", "offline", qos, true)
	opts.OnConnect = func(_ mqtt.Client) {
		// subscriptions don't survive a reconnect with a clean session
		if err := b.subscribe(); err != nil {
			b.logger.Error("failed to subscribe", slog.Any("err", err))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Warn("connection to broker lost", slog.Any("err", err))
	}
	b.client = mqtt.NewClient(opts)
	return b
}

func newBridge(client Client, prefix string, c Controller, p poller.Poller, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{
		client:     client,
		controller: c,
		poller:     p,
		prefix:     strings.TrimSuffix(prefix, "/"),
		logger:     logger,
		commands:   make(chan Command, 16),
	}
}

// Run connects to the broker, publishes the state of all thermostats after each poll, and executes incoming commands.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")

	if err := wait(b.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer b.client.Disconnect(250)

	if err := b.subscribe(); err != nil {
		return err
	}
	if err := wait(b.client.Publish(b.prefix+"/status", qos, true, "online")); err != nil {
		b.logger.Warn("failed to publish status", slog.Any("err", err))
	}

	ch := b.poller.Subscribe()
	defer b.poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			_ = wait(b.client.Publish(b.prefix+"/status", qos, true, "offline"))
			return nil
		case update := <-ch:
			b.publishStates(update)
		case cmd := <-b.commands:
			if err := b.execute(ctx, cmd); err != nil {
				b.logger.Error("command failed", slog.Any("command", cmd), slog.Any("err", err))
			}
		}
	}
}

func (b *Bridge) subscribe() error {
	if err := wait(b.client.Subscribe(b.prefix+"/+/set/+", qos, b.onMessage)); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	return nil
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(b.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		b.logger.Warn("invalid command", slog.String("topic", msg.Topic()), slog.Any("err", err))
		return
	}
	select {
	case b.commands <- cmd:
	default:
		b.logger.Warn("too many pending commands. command dropped", slog.Any("command", cmd))
	}
}

// StateMessage is the payload published on <prefix>/<id>/state.
type StateMessage struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Mode              daikin.Mode       `json:"mode"`
	Action            thermostat.Action `json:"action"`
	HeatSetpoint      float64           `json:"heatSetpoint"`
	CoolSetpoint      float64           `json:"coolSetpoint"`
	TargetTemperature *float64          `json:"targetTemperature,omitempty"`
	Temperature       float64           `json:"temperature"`
	Humidity          float64           `json:"humidity"`
	OutdoorTemp       float64           `json:"outdoorTemperature"`
	FanMode           string            `json:"fanMode"`
	ScheduleEnabled   bool              `json:"scheduleEnabled"`
	Timestamp         time.Time         `json:"timestamp"`
}

func (b *Bridge) publishStates(update poller.Update) {
	for _, t := range b.controller.Thermostats() {
		info, ok := update.Devices[t.ID]
		if !ok {
			continue
		}
		state, err := thermostat.ParseState(info)
		if err != nil {
			b.logger.Warn("invalid thermostat state", slog.String("device", t.ID), slog.Any("err", err))
			continue
		}
		msg := StateMessage{
			ID:              t.ID,
			Name:            t.Name,
			Mode:            state.Mode,
			Action:          state.Action(),
			HeatSetpoint:    state.HeatSetpoint,
			CoolSetpoint:    state.CoolSetpoint,
			Temperature:     state.IndoorTemperature,
			Humidity:        state.IndoorHumidity,
			OutdoorTemp:     state.OutdoorTemperature,
			FanMode:         state.FanMode(),
			ScheduleEnabled: state.ScheduleEnabled,
			Timestamp:       update.Timestamp,
		}
		if target, ok := state.TargetTemperature(); ok {
			msg.TargetTemperature = &target
		}
		payload, _ := json.Marshal(msg)
		if err = wait(b.client.Publish(b.prefix+"/"+t.ID+"/state", qos, true, payload)); err != nil {
			b.logger.Warn("failed to publish state", slog.String("device", t.ID), slog.Any("err", err))
		}
	}
}

// Command is a command received from the broker.
type Command struct {
	DeviceID string
	Setting  string
	Value    string
}

func (c Command) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("device", c.DeviceID),
		slog.String("setting", c.Setting),
		slog.String("value", c.Value),
	)
}

var errInvalidCommand = errors.New("invalid command")

// ParseCommand parses the topic & payload of a command.
func ParseCommand(prefix, topic string, payload []byte) (Command, error) {
	rest, ok := strings.CutPrefix(topic, strings.TrimSuffix(prefix, "/")+"/")
	if !ok {
		return Command{}, fmt.Errorf("%w: unexpected topic %q", errInvalidCommand, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] != "set" {
		return Command{}, fmt.Errorf("%w: unexpected topic %q", errInvalidCommand, topic)
	}
	cmd := Command{DeviceID: parts[0], Setting: parts[2], Value: strings.TrimSpace(string(payload))}
	switch cmd.Setting {
	case "mode", "temperature", "fan", "schedule":
	default:
		return Command{}, fmt.Errorf("%w: unsupported setting %q", errInvalidCommand, cmd.Setting)
	}
	if cmd.Value == "" {
		return Command{}, fmt.Errorf("%w: empty payload", errInvalidCommand)
	}
	return cmd, nil
}

func (b *Bridge) execute(ctx context.Context, cmd Command) error {
	switch cmd.Setting {
	case "mode":
		return b.controller.SetHVACMode(ctx, cmd.DeviceID, daikin.Mode(cmd.Value))
	case "temperature":
		temperature, err := strconv.ParseFloat(cmd.Value, 64)
		if err != nil {
			return fmt.Errorf("%w: temperature: %w", errInvalidCommand, err)
		}
		return b.controller.SetTemperature(ctx, cmd.DeviceID, temperature)
	case "fan":
		fanMode := strings.ToLower(cmd.Value)
		if fanMode != thermostat.FanModeAuto && fanMode != thermostat.FanModeCirculate {
			return fmt.Errorf("%w: fan mode %q", errInvalidCommand, cmd.Value)
		}
		return b.controller.SetFanMode(ctx, cmd.DeviceID, fanMode)
	case "schedule":
		enabled, err := parseSwitch(cmd.Value)
		if err != nil {
			return err
		}
		return b.controller.SetSchedule(ctx, cmd.DeviceID, enabled)
	default:
		return fmt.Errorf("%w: unsupported setting %q", errInvalidCommand, cmd.Setting)
	}
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: schedule %q", errInvalidCommand, value)
	}
	return enabled, nil
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(waitTimeout) {
		return errors.New("timeout")
	}
	return token.Error()
}

func randomID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
