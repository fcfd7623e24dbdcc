package thermostat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
)

// State is the decoded state of a thermostat. Fields missing from the device info are left at their zero value.
type State struct {
	Mode               daikin.Mode `json:"mode"`
	HeatSetpoint       float64     `json:"heatSetpoint"`
	CoolSetpoint       float64     `json:"coolSetpoint"`
	SetpointMinimum    float64     `json:"setpointMinimum"`
	SetpointMaximum    float64     `json:"setpointMaximum"`
	SetpointDelta      float64     `json:"setpointDelta"`
	IndoorTemperature  float64     `json:"tempIndoor"`
	IndoorHumidity     float64     `json:"humIndoor"`
	OutdoorTemperature float64     `json:"tempOutdoor"`
	OutdoorHumidity    float64     `json:"humOutdoor"`
	EquipmentStatus    int         `json:"equipmentStatus"`
	FanCirculate       bool        `json:"fanCirculate"`
	FanCirculateSpeed  int         `json:"fanCirculateSpeed"`
	ScheduleEnabled    bool        `json:"scheduleEnabled"`
}

// the API isn't consistent in how it encodes the mode and the fan settings.
type rawState struct {
	Mode               mode     `json:"mode"`
	HeatSetpoint       float64  `json:"heatSetpoint"`
	CoolSetpoint       float64  `json:"coolSetpoint"`
	SetpointMinimum    float64  `json:"setpointMinimum"`
	SetpointMaximum    float64  `json:"setpointMaximum"`
	SetpointDelta      float64  `json:"setpointDelta"`
	IndoorTemperature  float64  `json:"tempIndoor"`
	IndoorHumidity     float64  `json:"humIndoor"`
	OutdoorTemperature float64  `json:"tempOutdoor"`
	OutdoorHumidity    float64  `json:"humOutdoor"`
	EquipmentStatus    int      `json:"equipmentStatus"`
	FanCirculate       flexBool `json:"fanCirculate"`
	FanCirculateSpeed  int      `json:"fanCirculateSpeed"`
	ScheduleEnabled    flexBool `json:"scheduleEnabled"`
}

// ParseState decodes the device info of a thermostat.
func ParseState(info daikin.DeviceInfo) (State, error) {
	var raw rawState
	if err := info.Decode(&raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return State{
		Mode:               daikin.Mode(raw.Mode),
		HeatSetpoint:       raw.HeatSetpoint,
		CoolSetpoint:       raw.CoolSetpoint,
		SetpointMinimum:    raw.SetpointMinimum,
		SetpointMaximum:    raw.SetpointMaximum,
		SetpointDelta:      raw.SetpointDelta,
		IndoorTemperature:  raw.IndoorTemperature,
		IndoorHumidity:     raw.IndoorHumidity,
		OutdoorTemperature: raw.OutdoorTemperature,
		OutdoorHumidity:    raw.OutdoorHumidity,
		EquipmentStatus:    raw.EquipmentStatus,
		FanCirculate:       bool(raw.FanCirculate),
		FanCirculateSpeed:  raw.FanCirculateSpeed,
		ScheduleEnabled:    bool(raw.ScheduleEnabled),
	}, nil
}

// TargetTemperature returns the setpoint for the current mode. In auto & off mode, there is no single target temperature.
func (s State) TargetTemperature() (float64, bool) {
	switch s.Mode {
	case daikin.ModeHeat:
		return s.HeatSetpoint, true
	case daikin.ModeCool:
		return s.CoolSetpoint, true
	default:
		return 0, false
	}
}

const (
	FanModeAuto      = "auto"
	FanModeCirculate = "circulate"
)

// FanModes lists the supported fan modes.
var FanModes = []string{FanModeAuto, FanModeCirculate}

// FanMode returns "circulate" if the fan is set to circulate, "auto" otherwise.
func (s State) FanMode() string {
	if s.FanCirculate {
		return FanModeCirculate
	}
	return FanModeAuto
}

// Action is what the equipment is currently doing.
type Action string

const (
	ActionOff     Action = "off"
	ActionIdle    Action = "idle"
	ActionCooling Action = "cooling"
	ActionDrying  Action = "drying"
	ActionHeating Action = "heating"
	ActionFan     Action = "fan"
)

// Action maps the equipment status to an Action.
func (s State) Action() Action {
	if s.Mode == daikin.ModeOff {
		return ActionOff
	}
	switch s.EquipmentStatus {
	case 1:
		return ActionCooling
	case 2:
		return ActionDrying
	case 3:
		return ActionHeating
	case 4:
		return ActionFan
	default:
		return ActionIdle
	}
}

func (s State) String() string {
	var b strings.Builder
	b.WriteString(s.Mode.String())
	if target, ok := s.TargetTemperature(); ok {
		fmt.Fprintf(&b, " %.1fºC", target)
	} else if s.Mode == daikin.ModeAuto {
		fmt.Fprintf(&b, " %.1f-%.1fºC", s.HeatSetpoint, s.CoolSetpoint)
	}
	fmt.Fprintf(&b, " (indoor: %.1fºC, %.0f%%)", s.IndoorTemperature, s.IndoorHumidity)
	return b.String()
}

// mode accepts a mode either as a string, or as the numeric code used by the API:
// 0: off, 1: heat, 2: cool, 3: auto, 4: emergency heat.
type mode daikin.Mode

var modeCodes = map[int]daikin.Mode{
	0: daikin.ModeOff,
	1: daikin.ModeHeat,
	2: daikin.ModeCool,
	3: daikin.ModeAuto,
	4: daikin.ModeHeat,
}

func (m *mode) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = mode(strings.ToLower(strings.TrimSpace(s)))
		return nil
	}
	code, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid mode: %s", string(data))
	}
	if value, ok := modeCodes[code]; ok {
		*m = mode(value)
		return nil
	}
	*m = ""
	return nil
}

// flexBool accepts a boolean, or a number (non-zero is true).
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*b = true
	case "false", "null":
		*b = false
	default:
		value, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", string(data))
		}
		*b = value != 0
	}
	return nil
}
