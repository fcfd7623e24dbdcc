package poller

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
)

// Update is the state of all devices at one point in time.
type Update struct {
	Devices   map[string]daikin.DeviceInfo
	Timestamp time.Time
}

// DeviceIDs returns the IDs of all devices in the update, sorted.
func (u Update) DeviceIDs() []string {
	ids := make([]string, 0, len(u.Devices))
	for id := range u.Devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (u Update) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("devices", len(u.Devices)),
		slog.Time("timestamp", u.Timestamp),
	)
}

// Status is the outcome of the most recent poll. LastUpdate is the time of the most recent successful poll.
// If the most recent poll failed, LastError holds the reason.
type Status struct {
	LastUpdate time.Time
	LastError  *UpdateError
}

// Healthy returns true if the poller has data and the last poll succeeded.
func (s Status) Healthy() bool {
	return !s.LastUpdate.IsZero() && s.LastError == nil
}

// ErrorKind classifies why a poll failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredentials
	KindServerNotReachable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_auth"
	case KindServerNotReachable:
		return "cannot_connect"
	default:
		return "unknown"
	}
}

// UpdateError is returned when a poll fails.
type UpdateError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func newUpdateError(err error) *UpdateError {
	switch {
	case errors.Is(err, daikin.ErrInvalidCredentials):
		return &UpdateError{Kind: KindInvalidCredentials, Reason: "invalid credentials", Err: err}
	case errors.Is(err, daikin.ErrServerNotReachable):
		return &UpdateError{Kind: KindServerNotReachable, Reason: "server not reachable", Err: err}
	default:
		return &UpdateError{Kind: KindUnknown, Reason: "unexpected error", Err: err}
	}
}

func (e *UpdateError) Error() string {
	if e.Err == nil {
		return "update failed: " + e.Reason
	}
	return "update failed: " + e.Err.Error()
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}
