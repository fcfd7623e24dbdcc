package daikin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Credentials holds everything needed to authenticate against the Daikin integrator API.
//
// LocationName is optional. If set, GetDevices only returns the devices of the location with that name (case-insensitive).
type Credentials struct {
	Email           string
	APIKey          string
	IntegratorToken string
	LocationName    string
}

const minIntegratorTokenLength = 16

// Validate performs a basic sanity check of the credentials. It does not contact the API.
func (c Credentials) Validate() error {
	var errs []error
	if !validEmail(c.Email) {
		errs = append(errs, fmt.Errorf("invalid email address %q", c.Email))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is missing"))
	}
	if len(c.IntegratorToken) < minIntegratorTokenLength {
		errs = append(errs, fmt.Errorf("integrator token must be at least %d characters", minIntegratorTokenLength))
	}
	return errors.Join(errs...)
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".")
}

// Location is a named group of devices, as returned by /v1/devices.
type Location struct {
	LocationName string   `json:"locationName"`
	Devices      []Device `json:"devices"`
}

// DeviceTypeThermostat is the device type of a Daikin One+ thermostat.
const DeviceTypeThermostat = "Thermostat"

// Device is a single device registered at a Location.
type Device struct {
	ID              string `json:"id"`
	Type            string `json:"type,omitempty"`
	Name            string `json:"name,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

// IsThermostat returns true if the device is a thermostat.
func (d Device) IsThermostat() bool {
	return d.Type == DeviceTypeThermostat
}

// DeviceInfo is the state of a device, as returned by /v1/devices/{id}. The client does not interpret its content:
// it's passed on exactly as received.
type DeviceInfo json.RawMessage

// MarshalJSON returns the raw device info.
func (d DeviceInfo) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores a copy of the raw device info.
func (d *DeviceInfo) UnmarshalJSON(data []byte) error {
	if d == nil {
		return errors.New("daikin: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[0:0], data...)
	return nil
}

// Decode unmarshals the device info into v.
func (d DeviceInfo) Decode(v any) error {
	return json.Unmarshal(d, v)
}

// Mode is the operating mode of a thermostat.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
	ModeAuto Mode = "auto"
)

// Modes lists all supported modes.
var Modes = []Mode{ModeAuto, ModeOff, ModeHeat, ModeCool}

// ParseMode converts a string to a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeOff, ModeHeat, ModeCool, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// Response is the outcome of an update request. Updates don't fail on a non-2xx status: the caller decides
// what to do based on StatusCode.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK returns true if the request succeeded.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type tokenRequest struct {
	Email           string `json:"email"`
	IntegratorToken string `json:"integratorToken"`
}

type tokenResponse struct {
	AccessToken          *string `json:"accessToken"`
	AccessTokenExpiresIn *int    `json:"accessTokenExpiresIn"`
}

type modeSetpointRequest struct {
	Mode         Mode    `json:"mode"`
	HeatSetpoint float64 `json:"heatSetpoint"`
	CoolSetpoint float64 `json:"coolSetpoint"`
}

type scheduleRequest struct {
	ScheduleEnabled bool `json:"scheduleEnabled"`
}

type fanRequest struct {
	FanCirculate      bool `json:"fanCirculate"`
	FanCirculateSpeed int  `json:"fanCirculateSpeed"`
}
