package notifier

import (
	"log/slog"

	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
)

type SLogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = &SLogNotifier{}

func (s SLogNotifier) Notify(event thermostat.Event) {
	s.Logger.Info(event.Message(), slog.Any("event", event))
}
