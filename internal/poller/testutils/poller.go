package testutils

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/pkg/pubsub"
)

var _ poller.Poller = &FakePoller{}

// FakePoller publishes the updates it's given and counts refresh requests.
type FakePoller struct {
	*pubsub.Publisher[poller.Update]
	refreshes atomic.Int32
	lock      sync.RWMutex
	status    poller.Status
}

func NewFakePoller() *FakePoller {
	return &FakePoller{Publisher: pubsub.New[poller.Update](slog.Default(), pubsub.WithRetain())}
}

// Publish sends the update to all subscribers and marks the poller as healthy.
func (f *FakePoller) Publish(update poller.Update) {
	f.SetStatus(poller.Status{LastUpdate: update.Timestamp})
	f.Publisher.Publish(update)
}

func (f *FakePoller) Refresh() {
	f.refreshes.Add(1)
}

func (f *FakePoller) Refreshes() int {
	return int(f.refreshes.Load())
}

func (f *FakePoller) Status() poller.Status {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.status
}

func (f *FakePoller) SetStatus(status poller.Status) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.status = status
}
