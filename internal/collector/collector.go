// Package collector exports the state of all thermostats as Prometheus metrics.
package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nicholishen/daikin-one-plus/internal/poller"
	"github.com/nicholishen/daikin-one-plus/internal/thermostat"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	temperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "temperature_celsius"),
		"Current indoor temperature in degrees celsius",
		[]string{"id", "name"},
		nil,
	)
	humidityPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "humidity_percentage"),
		"Current indoor humidity in percentage (0-100)",
		[]string{"id", "name"},
		nil,
	)
	outdoorTemperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "outdoor_temperature_celsius"),
		"Current outdoor temperature in degrees celsius",
		[]string{"id", "name"},
		nil,
	)
	outdoorHumidityPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "outdoor_humidity_percentage"),
		"Current outdoor humidity in percentage (0-100)",
		[]string{"id", "name"},
		nil,
	)
	targetTemperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "target_temperature_celsius"),
		"Heat & cool setpoints in degrees celsius",
		[]string{"id", "name", "setpoint"},
		nil,
	)
	mode = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "mode"),
		"Current mode. Always 1. Label mode specifies the mode",
		[]string{"id", "name", "mode"},
		nil,
	)
	equipmentStatus = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "equipment_status"),
		"Equipment status (1: cooling, 2: drying, 3: heating, 4: fan, 5: idle)",
		[]string{"id", "name"},
		nil,
	)
	fanCirculate = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "fan_circulate"),
		"1 if the fan is set to circulate",
		[]string{"id", "name"},
		nil,
	)
	scheduleEnabled = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "thermostat", "schedule_enabled"),
		"1 if the thermostat's schedule is enabled",
		[]string{"id", "name"},
		nil,
	)
	pollerUp = prometheus.NewDesc(
		prometheus.BuildFQName("daikin", "poller", "up"),
		"1 if the last poll of the Daikin API succeeded",
		nil,
		nil,
	)
)

var _ prometheus.Collector = &Collector{}

type Collector struct {
	Poller      poller.Poller
	Thermostats []thermostat.Thermostat
	Logger      *slog.Logger
	lock        sync.RWMutex
	lastUpdate  *poller.Update
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Poller.Subscribe()
	defer c.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.lock.Lock()
			c.lastUpdate = &update
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- temperatureCelsius
	ch <- humidityPercentage
	ch <- outdoorTemperatureCelsius
	ch <- outdoorHumidityPercentage
	ch <- targetTemperatureCelsius
	ch <- mode
	ch <- equipmentStatus
	ch <- fanCirculate
	ch <- scheduleEnabled
	ch <- pollerUp
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(pollerUp, prometheus.GaugeValue, boolToFloat(c.Poller.Status().Healthy()))

	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastUpdate == nil {
		return
	}
	for _, t := range c.Thermostats {
		info, ok := c.lastUpdate.Devices[t.ID]
		if !ok {
			continue
		}
		state, err := thermostat.ParseState(info)
		if err != nil {
			c.Logger.Warn("invalid thermostat state", slog.String("device", t.ID), slog.Any("err", err))
			continue
		}
		collectState(ch, t, state)
	}
}

func collectState(ch chan<- prometheus.Metric, t thermostat.Thermostat, state thermostat.State) {
	ch <- prometheus.MustNewConstMetric(temperatureCelsius, prometheus.GaugeValue, state.IndoorTemperature, t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(humidityPercentage, prometheus.GaugeValue, state.IndoorHumidity, t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(outdoorTemperatureCelsius, prometheus.GaugeValue, state.OutdoorTemperature, t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(outdoorHumidityPercentage, prometheus.GaugeValue, state.OutdoorHumidity, t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(targetTemperatureCelsius, prometheus.GaugeValue, state.HeatSetpoint, t.ID, t.Name, "heat")
	ch <- prometheus.MustNewConstMetric(targetTemperatureCelsius, prometheus.GaugeValue, state.CoolSetpoint, t.ID, t.Name, "cool")
	if state.Mode != "" {
		ch <- prometheus.MustNewConstMetric(mode, prometheus.GaugeValue, 1, t.ID, t.Name, state.Mode.String())
	}
	ch <- prometheus.MustNewConstMetric(equipmentStatus, prometheus.GaugeValue, float64(state.EquipmentStatus), t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(fanCirculate, prometheus.GaugeValue, boolToFloat(state.FanCirculate), t.ID, t.Name)
	ch <- prometheus.MustNewConstMetric(scheduleEnabled, prometheus.GaugeValue, boolToFloat(state.ScheduleEnabled), t.ID, t.Name)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
