package devices

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nicholishen/daikin-one-plus/internal/app"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var Cmd = cobra.Command{
	Use:   "devices",
	Short: "Show the Daikin devices and their current state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := app.NewClient(viper.GetViper(), nil, slog.Default())
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer func() { _ = enc.Close() }()
		return ShowDevices(cmd.Context(), client, enc)
	},
}

type Encoder interface {
	Encode(any) error
}

type DaikinGetter interface {
	GetDevices(context.Context) ([]daikin.Device, error)
	GetDeviceInfo(context.Context, string) (daikin.DeviceInfo, error)
}

type entry struct {
	ID              string         `yaml:"id" json:"id"`
	Name            string         `yaml:"name" json:"name"`
	Type            string         `yaml:"type" json:"type"`
	Model           string         `yaml:"model,omitempty" json:"model,omitempty"`
	FirmwareVersion string         `yaml:"firmwareVersion,omitempty" json:"firmwareVersion,omitempty"`
	State           map[string]any `yaml:"state,omitempty" json:"state,omitempty"`
}

type report struct {
	Devices []entry `yaml:"devices" json:"devices"`
}

// ShowDevices encodes all devices at the configured location, with their state as returned by the API.
func ShowDevices(ctx context.Context, c DaikinGetter, e Encoder) error {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return fmt.Errorf("daikin: %w", err)
	}

	r := report{Devices: make([]entry, 0, len(devices))}
	for _, device := range devices {
		info, err := c.GetDeviceInfo(ctx, device.ID)
		if err != nil {
			return fmt.Errorf("daikin: %w", err)
		}
		var state map[string]any
		if err = info.Decode(&state); err != nil {
			return fmt.Errorf("device %s: %w", device.ID, err)
		}
		r.Devices = append(r.Devices, entry{
			ID:              device.ID,
			Name:            device.Name,
			Type:            device.Type,
			Model:           device.Model,
			FirmwareVersion: device.FirmwareVersion,
			State:           state,
		})
	}

	return e.Encode(r)
}
