// Package thermostat turns the devices reported by the poller into thermostats that can be queried and controlled.
//
// Commands are sent to the Daikin API straight away. If the API accepts a command, the Controller schedules a refresh
// of the device state (see Cooldown) and publishes an Event. If the API rejects it, the command returns a *CommandError
// and nothing else happens.
package thermostat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/nicholishen/daikin-one-plus/pkg/pubsub"
)

// DefaultName is used for thermostats that don't have a name.
const DefaultName = "Daikin One+ Thermostat"

type Client interface {
	UpdateDeviceModeSetpoint(ctx context.Context, deviceID string, mode daikin.Mode, heatSetpoint, coolSetpoint float64) (*daikin.Response, error)
	UpdateDeviceSchedule(ctx context.Context, deviceID string, enabled bool) (*daikin.Response, error)
	UpdateDeviceFanSettings(ctx context.Context, deviceID string, circulate bool, circulateSpeed int) (*daikin.Response, error)
}

type Notifier interface {
	Notify(Event)
}

// Thermostat describes a thermostat device.
type Thermostat struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Model           string `json:"model,omitempty" yaml:"model,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty" yaml:"firmwareVersion,omitempty"`
}

type Controller struct {
	client      Client
	poller      poller.Poller
	thermostats []Thermostat
	cooldown    *Cooldown
	notifier    Notifier
	events      *pubsub.Publisher[Event]
	logger      *slog.Logger
	now         func() time.Time
	lock        sync.RWMutex
	update      poller.Update
	updated     bool
}

// New returns a Controller for the thermostats in devices. Other device types are ignored.
// notifier may be nil.
func New(client Client, p poller.Poller, devices []daikin.Device, cooldown time.Duration, notifier Notifier, logger *slog.Logger) *Controller {
	thermostats := make([]Thermostat, 0, len(devices))
	for _, device := range devices {
		if !device.IsThermostat() {
			logger.Debug("ignoring device", slog.String("device", device.ID), slog.String("type", device.Type))
			continue
		}
		name := device.Name
		if name == "" {
			name = DefaultName
		}
		thermostats = append(thermostats, Thermostat{
			ID:              device.ID,
			Name:            name,
			Model:           device.Model,
			FirmwareVersion: device.FirmwareVersion,
		})
	}
	slices.SortFunc(thermostats, func(a, b Thermostat) int { return strings.Compare(a.ID, b.ID) })

	return &Controller{
		client:      client,
		poller:      p,
		thermostats: thermostats,
		cooldown:    NewCooldown(p, cooldown, logger.With(slog.String("component", "cooldown"))),
		notifier:    notifier,
		events:      pubsub.New[Event](logger.With(slog.String("component", "events"))),
		logger:      logger,
		now:         time.Now,
	}
}

// Run keeps track of the latest poller update, until the context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Debug("started", slog.Int("thermostats", len(c.thermostats)))
	defer c.logger.Debug("stopped")

	ch := c.poller.Subscribe()
	defer c.poller.Unsubscribe(ch)
	defer c.cooldown.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.lock.Lock()
			c.update = update
			c.updated = true
			c.lock.Unlock()
		}
	}
}

// Thermostats returns all thermostats, sorted by ID.
func (c *Controller) Thermostats() []Thermostat {
	return slices.Clone(c.thermostats)
}

// Thermostat returns the thermostat with the specified ID.
func (c *Controller) Thermostat(id string) (Thermostat, error) {
	for _, t := range c.thermostats {
		if t.ID == id {
			return t, nil
		}
	}
	return Thermostat{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
}

// Lookup finds a thermostat by ID or by name. Names are matched case-insensitively.
func (c *Controller) Lookup(idOrName string) (Thermostat, error) {
	if t, err := c.Thermostat(idOrName); err == nil {
		return t, nil
	}
	for _, t := range c.thermostats {
		if strings.EqualFold(t.Name, idOrName) {
			return t, nil
		}
	}
	return Thermostat{}, fmt.Errorf("%w: %s", ErrUnknownDevice, idOrName)
}

// CurrentState returns the thermostat's state, as of the latest poll.
func (c *Controller) CurrentState(id string) (State, error) {
	if _, err := c.Thermostat(id); err != nil {
		return State{}, err
	}
	c.lock.RLock()
	defer c.lock.RUnlock()
	if !c.updated {
		return State{}, ErrNoState
	}
	info, ok := c.update.Devices[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrNoState, id)
	}
	return ParseState(info)
}

// LastUpdate returns the time of the latest poll.
func (c *Controller) LastUpdate() time.Time {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.update.Timestamp
}

// Subscribe returns a channel that receives all events.
func (c *Controller) Subscribe() <-chan Event {
	return c.events.Subscribe()
}

// Unsubscribe stops sending events to the channel.
func (c *Controller) Unsubscribe(ch <-chan Event) {
	c.events.Unsubscribe(ch)
}

// Refresh requests an immediate poll.
func (c *Controller) Refresh() {
	c.poller.Refresh()
}

// SetHVACMode changes the mode of the thermostat. The setpoints are left unchanged.
func (c *Controller) SetHVACMode(ctx context.Context, id string, mode daikin.Mode) error {
	state, err := c.CurrentState(id)
	if err != nil {
		return err
	}
	if mode, err = daikin.ParseMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	err = c.exec(ctx, id, "mode", func() (*daikin.Response, error) {
		return c.client.UpdateDeviceModeSetpoint(ctx, id, mode, state.HeatSetpoint, state.CoolSetpoint)
	})
	if err == nil {
		c.publish(id, EventHVACModeChange, map[string]any{"hvac_mode": string(mode)})
	}
	return err
}

// SetTemperature sets the target temperature. In heat mode, only the heat setpoint changes. In cool mode, only the cool setpoint.
// In any other mode, both setpoints are set to the target temperature.
func (c *Controller) SetTemperature(ctx context.Context, id string, temperature float64) error {
	state, err := c.CurrentState(id)
	if err != nil {
		return err
	}
	if err = validTemperature(state, temperature); err != nil {
		return err
	}
	var heat, cool float64
	switch state.Mode {
	case daikin.ModeHeat:
		heat, cool = temperature, state.CoolSetpoint
	case daikin.ModeCool:
		heat, cool = state.HeatSetpoint, temperature
	default:
		if heat, cool, err = autoSetpoints(state, temperature); err != nil {
			return err
		}
	}
	err = c.exec(ctx, id, "temperature", func() (*daikin.Response, error) {
		return c.client.UpdateDeviceModeSetpoint(ctx, id, state.Mode, heat, cool)
	})
	if err == nil {
		c.publish(id, EventTargetTempChange, map[string]any{"target_temperature": temperature})
	}
	return err
}

// SetSetpoints sets both the heat & cool setpoints, leaving the mode unchanged.
func (c *Controller) SetSetpoints(ctx context.Context, id string, heat, cool float64) error {
	state, err := c.CurrentState(id)
	if err != nil {
		return err
	}
	if err = validTemperature(state, heat); err != nil {
		return err
	}
	if err = validTemperature(state, cool); err != nil {
		return err
	}
	if heat > cool {
		return fmt.Errorf("%w: heat setpoint %.1f is above cool setpoint %.1f", ErrInvalidValue, heat, cool)
	}
	err = c.exec(ctx, id, "setpoints", func() (*daikin.Response, error) {
		return c.client.UpdateDeviceModeSetpoint(ctx, id, state.Mode, heat, cool)
	})
	if err == nil {
		c.publish(id, EventTargetTempChange, map[string]any{"heat_setpoint": heat, "cool_setpoint": cool})
	}
	return err
}

// SetFanMode sets the fan mode: "circulate" turns on fan circulation, any other mode turns it off.
func (c *Controller) SetFanMode(ctx context.Context, id string, fanMode string) error {
	if _, err := c.Thermostat(id); err != nil {
		return err
	}
	circulate := strings.EqualFold(fanMode, FanModeCirculate)
	speed := 0
	if circulate {
		speed = 1
	}
	err := c.exec(ctx, id, "fan", func() (*daikin.Response, error) {
		return c.client.UpdateDeviceFanSettings(ctx, id, circulate, speed)
	})
	if err == nil {
		c.publish(id, EventFanModeChange, map[string]any{"fan_mode": fanMode})
	}
	return err
}

// SetSchedule enables or disables the thermostat's schedule.
func (c *Controller) SetSchedule(ctx context.Context, id string, enabled bool) error {
	if _, err := c.Thermostat(id); err != nil {
		return err
	}
	err := c.exec(ctx, id, "schedule", func() (*daikin.Response, error) {
		return c.client.UpdateDeviceSchedule(ctx, id, enabled)
	})
	if err == nil {
		c.publish(id, EventScheduleModeChange, map[string]any{"schedule_mode": enabled})
	}
	return err
}

// exec sends the command. If the API accepted it, a refresh is scheduled.
func (c *Controller) exec(ctx context.Context, id string, command string, f func() (*daikin.Response, error)) error {
	resp, err := f()
	if err != nil {
		c.logger.Error("command failed", slog.String("op", command), slog.String("device", id), slog.Any("err", err))
		return fmt.Errorf("%s: %w", command, err)
	}
	if !resp.OK() {
		c.logger.Error("command rejected",
			slog.String("op", command),
			slog.String("device", id),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(resp.Body)),
		)
		return &CommandError{DeviceID: id, Command: command, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	c.cooldown.Trigger(ctx, id)
	return nil
}

func (c *Controller) publish(id string, eventType EventType, data map[string]any) {
	name := id
	if t, err := c.Thermostat(id); err == nil {
		name = t.Name
	}
	event := Event{Type: eventType, DeviceID: id, Name: name, Data: data, Timestamp: c.now()}
	if c.notifier != nil {
		c.notifier.Notify(event)
	}
	c.events.Publish(event)
}

func validTemperature(state State, temperature float64) error {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return fmt.Errorf("%w: temperature %v", ErrInvalidValue, temperature)
	}
	if state.SetpointMinimum == 0 && state.SetpointMaximum == 0 {
		return nil
	}
	if temperature < state.SetpointMinimum || temperature > state.SetpointMaximum {
		return fmt.Errorf("%w: temperature %.1f outside of range %.1f-%.1f", ErrInvalidValue, temperature, state.SetpointMinimum, state.SetpointMaximum)
	}
	return nil
}

// autoSetpoints centres the heat & cool setpoints on the target temperature, keeping them at least
// SetpointDelta apart. Near the edges of the range, both setpoints shift to stay inside it.
func autoSetpoints(state State, temperature float64) (float64, float64, error) {
	delta := state.SetpointDelta
	heat, cool := temperature-delta/2, temperature+delta/2
	if state.SetpointMinimum == 0 && state.SetpointMaximum == 0 {
		return heat, cool, nil
	}
	if heat < state.SetpointMinimum {
		heat, cool = state.SetpointMinimum, state.SetpointMinimum+delta
	}
	if cool > state.SetpointMaximum {
		heat, cool = state.SetpointMaximum-delta, state.SetpointMaximum
	}
	if heat < state.SetpointMinimum {
		return 0, 0, fmt.Errorf("%w: setpoint delta %.1f exceeds range %.1f-%.1f", ErrInvalidValue, delta, state.SetpointMinimum, state.SetpointMaximum)
	}
	return heat, cool, nil
}
