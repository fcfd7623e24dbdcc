package daikintools

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/prometheus/client_golang/prometheus"
)

// NewInstrumentedHTTPClient returns an http.Client that records the number & duration of the Daikin API calls it performs.
func NewInstrumentedHTTPClient(rt http.RoundTripper, metrics metrics.RequestMetrics) *http.Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{Transport: getInstrumentedRoundTripper(rt, metrics)}
}

func getInstrumentedRoundTripper(rt http.RoundTripper, metrics metrics.RequestMetrics) http.RoundTripper {
	return roundtripper.New(
		roundtripper.WithRequestMetrics(metrics),
		roundtripper.WithRoundTripper(rt),
	)
}

// NewDaikinCallMetrics returns request metrics for Daikin API calls. Device IDs are removed from the path label,
// so the number of label values doesn't grow with the number of devices.
func NewDaikinCallMetrics(namespace, subsystem string, labels prometheus.Labels) metrics.RequestMetrics {
	return metrics.NewRequestMetrics(metrics.Options{
		Namespace:   namespace,
		Subsystem:   subsystem,
		ConstLabels: labels,
		LabelValues: func(request *http.Request, i int) (string, string, string) {
			return request.Method, filterPath(request.URL.Path), strconv.Itoa(i)
		},
	})
}

func filterPath(path string) string {
	const devicesPath = "/v1/devices/"
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, devicesPath) {
		return path
	}
	_, setting, found := strings.Cut(strings.TrimPrefix(path, devicesPath), "/")
	if !found || setting == "" {
		return devicesPath + "{id}"
	}
	return devicesPath + "{id}/" + setting
}
