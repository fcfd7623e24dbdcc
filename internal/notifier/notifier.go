// Package notifier reports thermostat events.
package notifier

import (
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
)

type Notifier interface {
	Notify(event thermostat.Event)
}

var _ thermostat.Notifier = Notifiers{}

// Notifiers sends each event to all its notifiers.
type Notifiers []Notifier

func (n Notifiers) Notify(event thermostat.Event) {
	for _, l := range n {
		l.Notify(event)
	}
}
