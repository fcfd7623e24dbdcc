package thermostat

import (
	"fmt"
	"log/slog"
	"time"
)

// EventType identifies what changed.
type EventType string

const (
	EventHVACModeChange     EventType = "daikin_one_plus_hvac_mode_change"
	EventTargetTempChange   EventType = "daikin_one_plus_target_temp_change"
	EventFanModeChange      EventType = "daikin_one_plus_fan_mode_change"
	EventScheduleModeChange EventType = "daikin_one_plus_schedule_mode_change"
)

// Event is published after the API accepted a command.
type Event struct {
	Type      EventType      `json:"type"`
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Message returns a human-readable description of the event.
func (e Event) Message() string {
	switch e.Type {
	case EventHVACModeChange:
		return fmt.Sprintf("%s: mode set to %v", e.Name, e.Data["hvac_mode"])
	case EventTargetTempChange:
		if heat, ok := e.Data["heat_setpoint"]; ok {
			return fmt.Sprintf("%s: setpoints set to %v/%vºC", e.Name, heat, e.Data["cool_setpoint"])
		}
		return fmt.Sprintf("%s: target temperature set to %vºC", e.Name, e.Data["target_temperature"])
	case EventFanModeChange:
		return fmt.Sprintf("%s: fan mode set to %v", e.Name, e.Data["fan_mode"])
	case EventScheduleModeChange:
		if enabled, _ := e.Data["schedule_mode"].(bool); enabled {
			return e.Name + ": schedule enabled"
		}
		return e.Name + ": schedule disabled"
	default:
		return e.Name + ": " + string(e.Type)
	}
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("device", e.DeviceID),
	}
	for key, value := range e.Data {
		attrs = append(attrs, slog.Any(key, value))
	}
	return slog.GroupValue(attrs...)
}
