package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/clambin/go-common/slackbot"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/slack-go/slack"
)

type Bot struct {
	slack      SlackBot
	controller Controller
	logger     *slog.Logger
}

type SlackBot interface {
	Add(commands slackbot.Commands)
	Run(ctx context.Context) error
	Send(channel string, attachments []slack.Attachment) error
}

type Controller interface {
	Thermostats() []thermostat.Thermostat
	Lookup(idOrName string) (thermostat.Thermostat, error)
	CurrentState(id string) (thermostat.State, error)
	SetHVACMode(ctx context.Context, id string, mode daikin.Mode) error
	SetTemperature(ctx context.Context, id string, temperature float64) error
	SetFanMode(ctx context.Context, id string, fanMode string) error
	SetSchedule(ctx context.Context, id string, enabled bool) error
	Refresh()
}

const setUsage = "Usage: set <thermostat> [mode <off|heat|cool|auto>|temperature <temperature>|fan <auto|circulate>|schedule <on|off>]"

func New(bot SlackBot, controller Controller, logger *slog.Logger) *Bot {
	b := Bot{
		slack:      bot,
		controller: controller,
		logger:     logger,
	}
	bot.Add(slackbot.Commands{
		"thermostats": slackbot.HandlerFunc(b.ReportThermostats),
		"set":         slackbot.HandlerFunc(b.Set),
		"refresh":     slackbot.HandlerFunc(b.DoRefresh),
	})
	return &b
}

// Run the bot
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")
	return b.slack.Run(ctx)
}

func (b *Bot) ReportThermostats(_ context.Context, _ ...string) []slack.Attachment {
	thermostats := b.controller.Thermostats()
	if len(thermostats) == 0 {
		return []slack.Attachment{{
			Color: "bad",
			Text:  "no thermostats found",
		}}
	}

	text := make([]string, 0, len(thermostats))
	for _, t := range thermostats {
		state, err := b.controller.CurrentState(t.ID)
		if err != nil {
			text = append(text, t.Name+": no data yet")
			continue
		}
		text = append(text, fmt.Sprintf("%s: %s [%s]", t.Name, state.String(), state.Action()))
	}

	return []slack.Attachment{{
		Color: "good",
		Title: "thermostats:",
		Text:  strings.Join(text, "\n"),
	}}
}

func (b *Bot) Set(ctx context.Context, args ...string) []slack.Attachment {
	t, text, err := b.set(ctx, args...)
	if err != nil {
		b.logger.Debug("set failed", slog.Any("args", args), slog.Any("err", err))
		return []slack.Attachment{{
			Color: "bad",
			Text:  err.Error(),
		}}
	}
	return []slack.Attachment{{
		Color: "good",
		Title: t.Name,
		Text:  text,
	}}
}

var errUsage = errors.New("invalid command")

func (b *Bot) set(ctx context.Context, args ...string) (thermostat.Thermostat, string, error) {
	if len(args) != 3 {
		return thermostat.Thermostat{}, "", fmt.Errorf("%w\n%s", errUsage, setUsage)
	}
	t, err := b.controller.Lookup(args[0])
	if err != nil {
		return thermostat.Thermostat{}, "", fmt.Errorf("invalid thermostat: %q", args[0])
	}

	value := args[2]
	switch args[1] {
	case "mode":
		err = b.controller.SetHVACMode(ctx, t.ID, daikin.Mode(strings.ToLower(value)))
		return t, "setting mode to " + strings.ToLower(value), err
	case "temperature":
		temperature, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, "", fmt.Errorf("invalid target temperature: %q", value)
		}
		err = b.controller.SetTemperature(ctx, t.ID, temperature)
		return t, fmt.Sprintf("setting target temperature to %.1fºC", temperature), err
	case "fan":
		fanMode := strings.ToLower(value)
		if fanMode != thermostat.FanModeAuto && fanMode != thermostat.FanModeCirculate {
			return t, "", fmt.Errorf("invalid fan mode: %q", value)
		}
		err = b.controller.SetFanMode(ctx, t.ID, fanMode)
		return t, "setting fan mode to " + fanMode, err
	case "schedule":
		var enabled bool
		switch strings.ToLower(value) {
		case "on":
			enabled = true
		case "off":
		default:
			return t, "", fmt.Errorf("invalid schedule setting: %q", value)
		}
		err = b.controller.SetSchedule(ctx, t.ID, enabled)
		return t, "turning schedule " + strings.ToLower(value), err
	default:
		return t, "", fmt.Errorf("%w\n%s", errUsage, setUsage)
	}
}

func (b *Bot) DoRefresh(_ context.Context, _ ...string) []slack.Attachment {
	b.controller.Refresh()
	return []slack.Attachment{{
		Text: "refreshing Daikin data",
	}}
}
