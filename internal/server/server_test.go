package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicholishen/daikin-one-plus/internal/health"
	"github.com/nicholishen/daikin-one-plus/internal/poller/testutils"
	"github.com/nicholishen/daikin-one-plus/internal/server"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	lock       sync.Mutex
	statusCode int
	err        error
	requests   []string
}

func (f *fakeClient) reply(request string) (*daikin.Response, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	if f.statusCode != 0 {
		return &daikin.Response{StatusCode: f.statusCode, Status: http.StatusText(f.statusCode)}, nil
	}
	return &daikin.Response{StatusCode: http.StatusOK, Status: "OK"}, nil
}

func (f *fakeClient) UpdateDeviceModeSetpoint(_ context.Context, deviceID string, mode daikin.Mode, heat, cool float64) (*daikin.Response, error) {
	return f.reply(strings.Join([]string{deviceID, "msp", string(mode)}, " "))
}

func (f *fakeClient) UpdateDeviceSchedule(_ context.Context, deviceID string, _ bool) (*daikin.Response, error) {
	return f.reply(deviceID + " schedule")
}

func (f *fakeClient) UpdateDeviceFanSettings(_ context.Context, deviceID string, _ bool, _ int) (*daikin.Response, error) {
	return f.reply(deviceID + " fan")
}

func newServer(t *testing.T) (*httptest.Server, *fakeClient, *testutils.FakePoller) {
	t.Helper()
	client := &fakeClient{}
	p := testutils.NewFakePoller()
	c := thermostat.New(client, p, []daikin.Device{
		{ID: "0001", Type: daikin.DeviceTypeThermostat, Name: "Living Room"},
		{ID: "0002", Type: daikin.DeviceTypeThermostat, Name: "Bedroom"},
	}, time.Hour, nil, slog.Default())
	h := health.New(p, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	go func() { _ = h.Run(ctx) }()

	p.Publish(testutils.Update(
		testutils.WithDevice("0001", testutils.WithMode(1)),
	))
	require.Eventually(t, func() bool {
		_, err := c.CurrentState("0001")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	s := httptest.NewServer(server.New(c, h, slog.Default()).Handler())
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return s, client, p
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestServer_Thermostats(t *testing.T) {
	s, _, _ := newServer(t)

	code, body := do(t, http.MethodGet, s.URL+"/api/thermostats", "")
	require.Equal(t, http.StatusOK, code)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Equal(t, "0001", first["id"])
	assert.Equal(t, "Living Room", first["name"])
	assert.Equal(t, "idle", first["action"])
	assert.Equal(t, "auto", first["fanMode"])
	assert.Equal(t, 20.0, first["targetTemperature"])
	assert.Equal(t, "heat", first["state"].(map[string]any)["mode"])

	// no state received for the second thermostat
	second := items[1].(map[string]any)
	assert.Equal(t, "0002", second["id"])
	assert.NotContains(t, second, "state")

	code, body = do(t, http.MethodGet, s.URL+"/api/thermostats/0001", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 21.5, body["state"].(map[string]any)["tempIndoor"])

	code, body = do(t, http.MethodGet, s.URL+"/api/thermostats/0003", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"].(map[string]any)["code"])
}

func TestServer_Commands(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		statusCode  int
		err         error
		wantCode    int
		wantError   string
		wantRequest string
	}{
		{name: "mode", path: "/api/thermostats/0001/mode", body: `{"mode":"cool"}`, wantCode: http.StatusAccepted, wantRequest: "0001 msp cool"},
		{name: "invalid mode", path: "/api/thermostats/0001/mode", body: `{"mode":"dry"}`, wantCode: http.StatusBadRequest, wantError: "invalid_value"},
		{name: "temperature", path: "/api/thermostats/0001/temperature", body: `{"temperature":21}`, wantCode: http.StatusAccepted, wantRequest: "0001 msp heat"},
		{name: "missing temperature", path: "/api/thermostats/0001/temperature", body: `{}`, wantCode: http.StatusBadRequest, wantError: "invalid_payload"},
		{name: "setpoints", path: "/api/thermostats/0001/setpoints", body: `{"heat":19,"cool":25}`, wantCode: http.StatusAccepted, wantRequest: "0001 msp heat"},
		{name: "fan", path: "/api/thermostats/0001/fan", body: `{"fanMode":"circulate"}`, wantCode: http.StatusAccepted, wantRequest: "0001 fan"},
		{name: "invalid fan", path: "/api/thermostats/0001/fan", body: `{"fanMode":"high"}`, wantCode: http.StatusBadRequest, wantError: "invalid_payload"},
		{name: "schedule", path: "/api/thermostats/0001/schedule", body: `{"enabled":true}`, wantCode: http.StatusAccepted, wantRequest: "0001 schedule"},
		{name: "invalid json", path: "/api/thermostats/0001/schedule", body: `{`, wantCode: http.StatusBadRequest, wantError: "invalid_payload"},
		{name: "unknown device", path: "/api/thermostats/0003/schedule", body: `{"enabled":true}`, wantCode: http.StatusNotFound, wantError: "not_found"},
		{name: "no state", path: "/api/thermostats/0002/temperature", body: `{"temperature":21}`, wantCode: http.StatusServiceUnavailable, wantError: "no_state"},
		{name: "rejected", path: "/api/thermostats/0001/fan", body: `{"fanMode":"auto"}`, statusCode: http.StatusBadRequest, wantCode: http.StatusBadGateway, wantError: "rejected", wantRequest: "0001 fan"},
		{name: "not reachable", path: "/api/thermostats/0001/fan", body: `{"fanMode":"auto"}`, err: daikin.ErrServerNotReachable, wantCode: http.StatusGatewayTimeout, wantError: "cannot_connect", wantRequest: "0001 fan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, client, _ := newServer(t)
			client.statusCode = tt.statusCode
			client.err = tt.err

			code, body := do(t, http.MethodPut, s.URL+tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"].(map[string]any)["code"])
			}
			if tt.wantRequest != "" {
				assert.Equal(t, []string{tt.wantRequest}, client.requests)
			} else {
				assert.Empty(t, client.requests)
			}
		})
	}
}

func TestServer_Refresh(t *testing.T) {
	s, _, p := newServer(t)

	code, _ := do(t, http.MethodPost, s.URL+"/api/refresh", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 1, p.Refreshes())
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newServer(t)

	assert.Eventually(t, func() bool {
		code, body := do(t, http.MethodGet, s.URL+"/health", "")
		return code == http.StatusOK && body["status"] == health.StatusHealthy
	}, time.Second, 10*time.Millisecond)
}

func TestServer_Events(t *testing.T) {
	s, _, _ := newServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	code, _ := do(t, http.MethodPut, s.URL+"/api/thermostats/0001/mode", `{"mode":"off"}`)
	require.Equal(t, http.StatusAccepted, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var event thermostat.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, thermostat.EventHVACModeChange, event.Type)
	assert.Equal(t, "0001", event.DeviceID)
	assert.Equal(t, "Living Room", event.Name)
	assert.Equal(t, map[string]any{"hvac_mode": "off"}, event.Data)
}
