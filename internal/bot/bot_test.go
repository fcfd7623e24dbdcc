package bot

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/clambin/go-common/slackbot"
	"github.com/nicholishen/daikin-one-plus/internal/poller/testutils"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBot_Run(t *testing.T) {
	sb := &fakeSlackBot{}
	b := New(sb, nil, slog.Default())
	assert.ElementsMatch(t, []string{"thermostats", "set", "refresh"}, sb.registered())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() { errCh <- b.Run(ctx) }()
	cancel()
	assert.NoError(t, <-errCh)
}

func TestBot_ReportThermostats(t *testing.T) {
	b, _, p := newBot(t)

	attachments := b.ReportThermostats(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "Living Room: no data yet\nBedroom: no data yet", attachments[0].Text)

	p.Publish(testutils.Update(
		testutils.WithDevice("0001", testutils.WithMode(1), testutils.WithEquipmentStatus(3)),
	))
	require.Eventually(t, func() bool {
		_, err := b.controller.CurrentState("0001")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	attachments = b.ReportThermostats(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "good", attachments[0].Color)
	assert.Equal(t, "Living Room: heat 20.0ºC (indoor: 21.5ºC, 45%) [heating]\nBedroom: no data yet", attachments[0].Text)
}

func TestBot_Set(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		statusCode  int
		wantColor   string
		wantText    string
		wantRequest string
	}{
		{name: "mode", args: []string{"living room", "mode", "Cool"}, wantColor: "good", wantText: "setting mode to cool", wantRequest: "0001 msp cool"},
		{name: "temperature", args: []string{"0001", "temperature", "21"}, wantColor: "good", wantText: "setting target temperature to 21.0ºC", wantRequest: "0001 msp heat"},
		{name: "fan", args: []string{"Living Room", "fan", "circulate"}, wantColor: "good", wantText: "setting fan mode to circulate", wantRequest: "0001 fan"},
		{name: "schedule", args: []string{"Living Room", "schedule", "on"}, wantColor: "good", wantText: "turning schedule on", wantRequest: "0001 schedule"},
		{name: "missing args", args: []string{"Living Room", "mode"}, wantColor: "bad", wantText: "invalid command\n" + setUsage},
		{name: "invalid setting", args: []string{"Living Room", "humidity", "40"}, wantColor: "bad", wantText: "invalid command\n" + setUsage},
		{name: "unknown thermostat", args: []string{"Kitchen", "mode", "off"}, wantColor: "bad", wantText: `invalid thermostat: "Kitchen"`},
		{name: "invalid temperature", args: []string{"Living Room", "temperature", "warm"}, wantColor: "bad", wantText: `invalid target temperature: "warm"`},
		{name: "out of range", args: []string{"Living Room", "temperature", "40"}, wantColor: "bad"},
		{name: "invalid fan", args: []string{"Living Room", "fan", "high"}, wantColor: "bad", wantText: `invalid fan mode: "high"`},
		{name: "invalid schedule", args: []string{"Living Room", "schedule", "maybe"}, wantColor: "bad", wantText: `invalid schedule setting: "maybe"`},
		{name: "rejected", args: []string{"Living Room", "fan", "auto"}, statusCode: http.StatusBadRequest, wantColor: "bad", wantRequest: "0001 fan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, client, p := newBot(t)
			client.statusCode = tt.statusCode
			p.Publish(testutils.Update(testutils.WithDevice("0001", testutils.WithMode(1))))
			require.Eventually(t, func() bool {
				_, err := b.controller.CurrentState("0001")
				return err == nil
			}, time.Second, 10*time.Millisecond)

			attachments := b.Set(context.Background(), tt.args...)
			require.Len(t, attachments, 1)
			assert.Equal(t, tt.wantColor, attachments[0].Color)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, attachments[0].Text)
			}
			if tt.wantRequest != "" {
				assert.Equal(t, []string{tt.wantRequest}, client.calls())
			} else {
				assert.Empty(t, client.calls())
			}
		})
	}
}

func TestBot_DoRefresh(t *testing.T) {
	b, _, p := newBot(t)
	attachments := b.DoRefresh(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "refreshing Daikin data", attachments[0].Text)
	assert.Equal(t, 1, p.Refreshes())
}

func TestBot_Commands(t *testing.T) {
	sb := &fakeSlackBot{}
	b, _, p := newBot(t)
	New(sb, b.controller, slog.Default())

	refresh, ok := sb.commands["refresh"].(slackbot.HandlerFunc)
	require.True(t, ok)
	attachments := refresh(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "refreshing Daikin data", attachments[0].Text)
	assert.Equal(t, 1, p.Refreshes())

	set, ok := sb.commands["set"].(slackbot.HandlerFunc)
	require.True(t, ok)
	attachments = set(context.Background(), "Kitchen", "mode", "off")
	require.Len(t, attachments, 1)
	assert.Equal(t, "bad", attachments[0].Color)
}

func newBot(t *testing.T) (*Bot, *fakeClient, *testutils.FakePoller) {
	t.Helper()
	client := &fakeClient{}
	p := testutils.NewFakePoller()
	c := thermostat.New(client, p, []daikin.Device{
		{ID: "0001", Type: daikin.DeviceTypeThermostat, Name: "Living Room"},
		{ID: "0002", Type: daikin.DeviceTypeThermostat, Name: "Bedroom"},
	}, time.Hour, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(cancel)

	return New(&fakeSlackBot{}, c, slog.Default()), client, p
}

var _ SlackBot = &fakeSlackBot{}

type fakeSlackBot struct {
	lock     sync.Mutex
	commands slackbot.Commands
}

func (f *fakeSlackBot) Add(commands slackbot.Commands) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.commands == nil {
		f.commands = make(slackbot.Commands)
	}
	for name, command := range commands {
		f.commands[name] = command
	}
}

func (f *fakeSlackBot) registered() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	names := make([]string, 0, len(f.commands))
	for name := range f.commands {
		names = append(names, name)
	}
	return names
}

func (f *fakeSlackBot) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeSlackBot) Send(string, []slack.Attachment) error {
	return nil
}

type fakeClient struct {
	lock       sync.Mutex
	statusCode int
	requests   []string
}

func (f *fakeClient) reply(request string) (*daikin.Response, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests = append(f.requests, request)
	if f.statusCode != 0 {
		return &daikin.Response{StatusCode: f.statusCode, Status: http.StatusText(f.statusCode)}, nil
	}
	return &daikin.Response{StatusCode: http.StatusOK, Status: "OK"}, nil
}

func (f *fakeClient) calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeClient) UpdateDeviceModeSetpoint(_ context.Context, deviceID string, mode daikin.Mode, _, _ float64) (*daikin.Response, error) {
	return f.reply(deviceID + " msp " + string(mode))
}

func (f *fakeClient) UpdateDeviceSchedule(_ context.Context, deviceID string, _ bool) (*daikin.Response, error) {
	return f.reply(deviceID + " schedule")
}

func (f *fakeClient) UpdateDeviceFanSettings(_ context.Context, deviceID string, _ bool, _ int) (*daikin.Response, error) {
	return f.reply(deviceID + " fan")
}
