package daikin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// GetDevices returns the devices at the configured location.
//
// If Credentials.LocationName is set, GetDevices returns the devices of the location with that name (case-insensitive).
// If no location matches, the returned slice is empty. If no location name is set, the devices of the first
// location are returned.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}

	// an empty listing may come back without content
	var locations []Location
	if b := bytes.TrimSpace(body); len(b) > 0 && !bytes.Equal(b, []byte("{}")) {
		if err = json.Unmarshal(b, &locations); err != nil {
			return nil, fmt.Errorf("devices: decode: %w", err)
		}
	}

	if c.credentials.LocationName == "" {
		if len(locations) == 0 {
			return []Device{}, nil
		}
		return nonNil(locations[0].Devices), nil
	}

	for _, location := range locations {
		if strings.EqualFold(location.LocationName, c.credentials.LocationName) {
			return nonNil(location.Devices), nil
		}
	}
	c.logger.Warn("location not found", "location", c.credentials.LocationName)
	return []Device{}, nil
}

func nonNil(devices []Device) []Device {
	if devices == nil {
		return []Device{}
	}
	return devices
}

// GetDeviceInfo returns the current state of the device.
func (c *Client) GetDeviceInfo(ctx context.Context, deviceID string) (DeviceInfo, error) {
	body, err := c.request(ctx, http.MethodGet, devicePath(deviceID, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, err)
	}
	return DeviceInfo(body), nil
}

// GetDevicesInfo returns the current state of all devices at the configured location, keyed by device ID.
func (c *Client) GetDevicesInfo(ctx context.Context) (map[string]DeviceInfo, error) {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]DeviceInfo, len(devices))
	var lock sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, device := range devices {
		g.Go(func() error {
			info, err := c.GetDeviceInfo(ctx, device.ID)
			if err == nil {
				lock.Lock()
				result[device.ID] = info
				lock.Unlock()
			}
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDeviceModeSetpoint sets the mode and the heat & cool setpoints of the device.
//
// The request only fails if it could not be sent. The caller should check the status code of the returned Response.
func (c *Client) UpdateDeviceModeSetpoint(ctx context.Context, deviceID string, mode Mode, heatSetpoint, coolSetpoint float64) (*Response, error) {
	return c.update(ctx, deviceID, "msp", modeSetpointRequest{
		Mode:         Mode(strings.ToLower(string(mode))),
		HeatSetpoint: heatSetpoint,
		CoolSetpoint: coolSetpoint,
	})
}

// UpdateDeviceSchedule enables or disables the schedule of the device.
func (c *Client) UpdateDeviceSchedule(ctx context.Context, deviceID string, enabled bool) (*Response, error) {
	return c.update(ctx, deviceID, "schedule", scheduleRequest{ScheduleEnabled: enabled})
}

// UpdateDeviceFanSettings sets the fan circulation mode and speed of the device.
func (c *Client) UpdateDeviceFanSettings(ctx context.Context, deviceID string, circulate bool, circulateSpeed int) (*Response, error) {
	return c.update(ctx, deviceID, "fan", fanRequest{FanCirculate: circulate, FanCirculateSpeed: circulateSpeed})
}

func (c *Client) update(ctx context.Context, deviceID, setting string, payload any) (*Response, error) {
	resp, err := c.do(ctx, http.MethodPut, devicePath(deviceID, setting), payload)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", setting, deviceID, err)
	}
	if !resp.OK() {
		c.logger.Debug("update rejected", "device", deviceID, "setting", setting, "status", resp.StatusCode)
	}
	return resp, nil
}

func devicePath(deviceID, setting string) string {
	path := "/v1/devices/" + url.PathEscape(deviceID)
	if setting != "" {
		path += "/" + setting
	}
	return path
}
