package notifier

import (
	"log/slog"

	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/slack-go/slack"
)

type SlackSender interface {
	Send(channel string, attachments []slack.Attachment) error
}

// SlackNotifier posts events to a Slack channel. If Channel is blank, the bot posts to all channels it has joined.
type SlackNotifier struct {
	Bot     SlackSender
	Channel string
	Logger  *slog.Logger
}

var _ Notifier = &SlackNotifier{}

func (s SlackNotifier) Notify(event thermostat.Event) {
	err := s.Bot.Send(s.Channel, []slack.Attachment{{
		Color: "good",
		Title: event.Name,
		Text:  event.Message(),
	}})
	if err != nil && s.Logger != nil {
		s.Logger.Error("failed to post event to slack", slog.Any("err", err))
	}
}
