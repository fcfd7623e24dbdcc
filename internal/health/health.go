// Package health reports whether the poller has data and whether its last poll succeeded.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nicholishen/daikin-one-plus/internal/poller"
)

type Health struct {
	poller.Poller
	logger  *slog.Logger
	update  poller.Update
	updated bool
	lock    sync.RWMutex
}

// Report is the body of a health response.
type Report struct {
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	LastUpdate time.Time `json:"lastUpdate"`
	Devices    []string  `json:"devices"`
}

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

func New(p poller.Poller, logger *slog.Logger) *Health {
	return &Health{
		Poller: p,
		logger: logger,
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.Poller.Subscribe()
	defer h.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			h.lock.Lock()
			h.update = update
			h.updated = true
			h.lock.Unlock()
		}
	}
}

// ServeHTTP returns 503 until the first update is received. Afterwards, it returns a Report. If the last poll failed,
// the status is "degraded": the reported data is stale, but still usable.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if !h.updated {
		http.Error(w, "no update yet", http.StatusServiceUnavailable)
		h.Poller.Refresh()
		return
	}

	report := Report{
		Status:     StatusHealthy,
		LastUpdate: h.update.Timestamp,
		Devices:    h.update.DeviceIDs(),
	}
	if status := h.Poller.Status(); status.LastError != nil {
		report.Status = StatusDegraded
		report.Reason = status.LastError.Reason
		report.Kind = status.LastError.Kind.String()
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
