package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/nicholishen/daikin-one-plus/pkg/pubsub"
)

// DefaultInterval is the time between two polls, if no interval is configured.
const DefaultInterval = 3 * time.Minute

type Poller interface {
	Subscribe() <-chan Update
	Unsubscribe(ch <-chan Update)
	Refresh()
	Status() Status
}

type DevicesGetter interface {
	GetDevicesInfo(ctx context.Context) (map[string]daikin.DeviceInfo, error)
}

var _ Poller = &DaikinPoller{}

// DaikinPoller periodically gets the state of all devices and publishes it to its subscribers.
// New subscribers immediately receive the most recent update.
type DaikinPoller struct {
	client DevicesGetter
	*pubsub.Publisher[Update]
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
	now      func() time.Time
	lock     sync.RWMutex
	status   Status
}

func New(client DevicesGetter, interval time.Duration, logger *slog.Logger) *DaikinPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &DaikinPoller{
		client:    client,
		Publisher: pubsub.New[Update](logger.With(slog.String("component", "publisher")), pubsub.WithRetain()),
		interval:  interval,
		logger:    logger,
		refresh:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Start performs the first poll. The application can't work without a first set of data, so any error is
// returned to the caller as an *UpdateError.
func (p *DaikinPoller) Start(ctx context.Context) error {
	return p.poll(ctx)
}

// Run polls the Daikin API at the configured interval, or when a refresh is requested, until the context is canceled.
// Failed polls are logged and recorded in Status. The poller keeps running and tries again at the next interval.
func (p *DaikinPoller) Run(ctx context.Context) error {
	p.logger.Debug("started", slog.Duration("interval", p.interval))
	defer p.logger.Debug("stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.refresh:
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("failed to get device info", slog.Any("err", err))
		}
	}
}

// Refresh requests an immediate poll. Multiple requests made before the poll starts are served by a single poll.
func (p *DaikinPoller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent poll.
func (p *DaikinPoller) Status() Status {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.status
}

func (p *DaikinPoller) poll(ctx context.Context) error {
	start := p.now()
	devices, err := p.client.GetDevicesInfo(ctx)
	if err != nil {
		updateErr := newUpdateError(err)
		p.setStatus(func(s *Status) { s.LastError = updateErr })
		return updateErr
	}

	update := Update{Devices: devices, Timestamp: p.now()}
	p.setStatus(func(s *Status) {
		s.LastUpdate = update.Timestamp
		s.LastError = nil
	})
	p.Publisher.Publish(update)
	p.logger.Debug("poll completed", slog.Int("devices", len(devices)), slog.Duration("duration", p.now().Sub(start)))
	return nil
}

func (p *DaikinPoller) setStatus(f func(*Status)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	f(&p.status)
}
