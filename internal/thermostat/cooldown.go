package thermostat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/nicholishen/daikin-one-plus/pkg/scheduler"
)

// DefaultCooldown is the time between a successful command and the refresh it triggers.
const DefaultCooldown = 15 * time.Second

type Refresher interface {
	Refresh()
}

// Cooldown debounces refresh requests after a write. The first Trigger for a device schedules a refresh after
// the cooldown period. Any Trigger for that device before the refresh runs is ignored: the refresh gets the latest
// state anyway. Devices don't affect each other.
type Cooldown struct {
	refresher Refresher
	wait      time.Duration
	logger    *slog.Logger
	pending   set.Set[string]
	jobs      map[string]*scheduler.Job
	lock      sync.Mutex
}

func NewCooldown(refresher Refresher, wait time.Duration, logger *slog.Logger) *Cooldown {
	if wait <= 0 {
		wait = DefaultCooldown
	}
	return &Cooldown{
		refresher: refresher,
		wait:      wait,
		logger:    logger,
		pending:   set.New[string](),
		jobs:      make(map[string]*scheduler.Job),
	}
}

// Trigger schedules a refresh for the device, unless one is already pending. The scheduled refresh isn't tied
// to ctx: callers typically pass a request context that ends before the cooldown does. Use Stop to cancel
// pending refreshes.
func (c *Cooldown) Trigger(ctx context.Context, deviceID string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.pending.Contains(deviceID) {
		c.logger.Debug("refresh already pending", slog.String("device", deviceID))
		return false
	}
	c.pending.Add(deviceID)
	c.jobs[deviceID] = scheduler.Schedule(context.WithoutCancel(ctx), scheduler.TaskFunc(func(_ context.Context) {
		c.clear(deviceID)
		c.logger.Debug("refreshing after cooldown", slog.String("device", deviceID))
		c.refresher.Refresh()
	}), c.wait)
	c.logger.Debug("refresh scheduled", slog.String("device", deviceID), slog.Duration("cooldown", c.wait))
	return true
}

// Pending returns true if a refresh is scheduled for the device.
func (c *Cooldown) Pending(deviceID string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pending.Contains(deviceID)
}

// Stop cancels all pending refreshes. It returns the devices whose refresh was dropped.
func (c *Cooldown) Stop() []string {
	c.lock.Lock()
	jobs := c.jobs
	c.jobs = make(map[string]*scheduler.Job)
	c.pending = set.New[string]()
	c.lock.Unlock()

	var dropped []string
	for deviceID, job := range jobs {
		job.Cancel()
		// a refresh that started before Stop runs to completion
		if _, err := job.Result(); errors.Is(err, scheduler.ErrCanceled) {
			c.logger.Debug("pending refresh canceled", slog.String("device", deviceID))
			dropped = append(dropped, deviceID)
		}
	}
	slices.Sort(dropped)
	return dropped
}

func (c *Cooldown) clear(deviceID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pending.Remove(deviceID)
	delete(c.jobs, deviceID)
}
